// iax2packet builds one arbitrary IAX2 frame from command-line flags and
// sends it, a hand tool for poking at peers and inspecting their replies.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arzzra/iax2/pkg/iax2/frame"
	"github.com/arzzra/iax2/pkg/iax2/peer"
)

var opts struct {
	ip             string
	shell          string
	typ            string
	metaType       string
	subclass       string
	sourceCallNum  uint16
	destCallNum    uint16
	inSeqNum       uint8
	outSeqNum      uint8
	timestamp      uint32
	retransmission string
	ieStrings      []string
	ieUshorts      []string
	ieUlongs       []string
	waitCallNum    bool
}

var rootCmd = &cobra.Command{
	Use:          "iax2packet",
	Short:        "Send a single hand-built IAX2 frame",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&opts.ip, "ip", "i", "", "destination ip address, with optional :port")
	f.StringVarP(&opts.shell, "shell", "f", "", "frame shell: FULL, MINI or META")
	f.StringVarP(&opts.typ, "type", "t", "", "FULL frame type (DTMF_END, VOICE, VIDEO, CONTROL, NULL, IAX2, TEXT, IMAGE, HTML, CNG, MODEM, DTMF_BEGIN)")
	f.StringVarP(&opts.metaType, "metatype", "m", "VIDEO", "META frame type")
	f.StringVarP(&opts.subclass, "subclass", "s", "", "frame subclass, e.g. NEW, ACK, REGREQ")
	f.Uint16VarP(&opts.sourceCallNum, "source_call_num", "S", 0, "source call number")
	f.Uint16VarP(&opts.destCallNum, "dest_call_num", "D", 0, "destination call number")
	f.Uint8VarP(&opts.inSeqNum, "in_seq_num", "I", 0, "in sequence number")
	f.Uint8VarP(&opts.outSeqNum, "out_seq_num", "O", 0, "out sequence number")
	f.Uint32VarP(&opts.timestamp, "timestamp", "T", 0, "timestamp (unsigned decimal)")
	f.StringVarP(&opts.retransmission, "retransmission", "r", "FALSE", "retransmission flag: TRUE or FALSE")
	f.StringArrayVarP(&opts.ieStrings, "ie_string", "R", nil, "add a string IE as NAME=value")
	f.StringArrayVarP(&opts.ieUshorts, "ie_ushort", "o", nil, "add an unsigned short IE as NAME=value")
	f.StringArrayVarP(&opts.ieUlongs, "ie_ulong", "l", nil, "add an unsigned long IE as NAME=value")
	f.BoolVarP(&opts.waitCallNum, "wait_call_num", "W", false, "wait for a reply frame and print its source call number")

	rootCmd.MarkFlagRequired("ip")
	rootCmd.MarkFlagRequired("shell")
}

func run() error {
	addr, err := parseAddr(opts.ip)
	if err != nil {
		return err
	}

	f, err := buildFrame()
	if err != nil {
		return err
	}

	data, err := f.Encode()
	if err != nil {
		return err
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println(f)
	if _, err := conn.Write(data); err != nil {
		return err
	}

	if !opts.waitCallNum {
		return nil
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	reply, err := frame.Parse(buf[:n])
	if err != nil {
		return err
	}
	fmt.Println(reply)
	fmt.Printf("source call number: %d\n", reply.SourceCallNum())

	return nil
}

func buildFrame() (*frame.Frame, error) {
	f := frame.New().
		SetDirection(frame.DirectionOut).
		SetSourceCallNum(opts.sourceCallNum).
		SetDestCallNum(opts.destCallNum).
		SetInSeqNum(opts.inSeqNum).
		SetOutSeqNum(opts.outSeqNum).
		SetTimestamp(opts.timestamp).
		SetRetransmission(strings.EqualFold(opts.retransmission, "TRUE"))

	switch strings.ToUpper(opts.shell) {
	case "FULL":
		f.SetShell(frame.ShellFull)
	case "MINI":
		f.SetShell(frame.ShellMini)
	case "META":
		f.SetShell(frame.ShellMeta)
	default:
		return nil, fmt.Errorf("invalid shell %q", opts.shell)
	}

	if opts.typ != "" {
		t, ok := frame.TypeFromString(opts.typ)
		if !ok {
			return nil, fmt.Errorf("invalid frame type %q", opts.typ)
		}
		f.SetType(t)
	}

	if f.Shell() == frame.ShellMeta {
		if !strings.EqualFold(opts.metaType, "VIDEO") {
			return nil, fmt.Errorf("invalid meta type %q", opts.metaType)
		}
		f.SetMetaType(frame.MetaVideo)
	}

	if opts.subclass != "" {
		sc, ok := frame.SubclassFromString(opts.subclass)
		if !ok {
			return nil, fmt.Errorf("invalid subclass %q", opts.subclass)
		}
		f.SetSubclass(sc)
	}

	for _, spec := range opts.ieStrings {
		name, val, err := splitIE(spec)
		if err != nil {
			return nil, err
		}
		f.AddIEString(name, val)
	}
	for _, spec := range opts.ieUshorts {
		name, val, err := splitIE(spec)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseUint(val, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid ushort IE value %q: %w", val, err)
		}
		f.AddIEUint16(name, uint16(n))
	}
	for _, spec := range opts.ieUlongs {
		name, val, err := splitIE(spec)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid ulong IE value %q: %w", val, err)
		}
		f.AddIEUint32(name, uint32(n))
	}

	return f, nil
}

func splitIE(spec string) (frame.IEType, string, error) {
	name, val, found := strings.Cut(spec, "=")
	if !found {
		return 0, "", fmt.Errorf("IE option %q is not NAME=value", spec)
	}
	t, ok := frame.IETypeFromString(name)
	if !ok {
		return 0, "", fmt.Errorf("invalid IE type %q", name)
	}
	return t, val, nil
}

func parseAddr(s string) (*net.UDPAddr, error) {
	host := s
	port := peer.DefaultPort
	if h, p, err := net.SplitHostPort(s); err == nil {
		host = h
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		port = n
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("%q is not a valid IP address", host)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

func main() {
	slog.SetLogLoggerLevel(slog.LevelWarn)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
