// Package frame implements the IAX2 wire format: FULL, MINI and META
// frames with their Information Elements, parsed from and encoded to UDP
// datagrams byte-for-byte.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	fullHeaderLen      = 12
	miniHeaderLen      = 4
	metaHeaderLen      = 4
	metaVideoHeaderLen = 6

	// metaCmdVideo is the meta command byte selecting a meta video frame.
	metaCmdVideo = 0x80
)

var (
	// ErrShortFrame is returned when a datagram is too small for its
	// frame shell's header.
	ErrShortFrame = errors.New("datagram too short for frame header")

	// ErrUnknownMetaCommand is returned for META frames whose command is
	// not meta video, the only defined meta type.
	ErrUnknownMetaCommand = errors.New("unknown meta command")

	// ErrNotOutbound is returned by Encode for frames whose direction is
	// not DirectionOut.
	ErrNotOutbound = errors.New("frame direction must be outbound to encode")

	// ErrUnknownShell is returned by Encode for frames without a shell.
	ErrUnknownShell = errors.New("unknown frame shell")
)

// Frame is one IAX2 network frame. A zero-constructed frame is built up
// with the chained Set* methods and encoded with Encode; a received
// datagram is turned into a frame with Parse, which fills every field the
// wire carries.
type Frame struct {
	direction      Direction
	shell          Shell
	typ            Type
	sourceCallNum  uint16
	destCallNum    uint16
	timestamp      uint32
	outSeqNum      uint8
	inSeqNum       uint8
	retransmission bool
	subclassCoded  bool
	subclass       Subclass
	metaType       MetaType
	ies            []IE
	rawData        []byte
}

// New returns an empty frame with no direction set.
func New() *Frame {
	return &Frame{}
}

// Parse decodes a datagram into a frame. The first 16 bits select the
// shell: high bit set is FULL, non-zero is MINI, zero is META. The
// returned frame has direction DirectionIn.
func Parse(buf []byte) (*Frame, error) {
	if len(buf) < 2 {
		return nil, ErrShortFrame
	}

	f := &Frame{direction: DirectionIn}

	begin := binary.BigEndian.Uint16(buf)
	switch {
	case begin&0x8000 != 0:
		if err := f.parseFull(buf); err != nil {
			return nil, err
		}
	case begin != 0:
		if err := f.parseMini(buf); err != nil {
			return nil, err
		}
	default:
		if err := f.parseMeta(buf); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (f *Frame) parseFull(buf []byte) error {
	if len(buf) < fullHeaderLen {
		return ErrShortFrame
	}

	f.shell = ShellFull
	f.sourceCallNum = binary.BigEndian.Uint16(buf[0:2]) & 0x7FFF
	dcallno := binary.BigEndian.Uint16(buf[2:4])
	f.retransmission = dcallno&0x8000 != 0
	f.destCallNum = dcallno & 0x7FFF
	f.timestamp = binary.BigEndian.Uint32(buf[4:8])
	f.outSeqNum = buf[8]
	f.inSeqNum = buf[9]
	f.typ = Type(buf[10])
	f.subclassCoded = buf[11]&0x80 != 0
	f.subclass = Subclass(buf[11] & 0x7F)

	rest := buf[fullHeaderLen:]

	if f.typ != TypeIAX2 {
		// Trailing bytes of a non-IAX2 full frame are media payload.
		f.rawData = append([]byte(nil), rest...)
		return nil
	}

	// IE triplets until the buffer is consumed. A malformed length stops
	// parsing; the elements decoded so far are retained.
	for len(rest) > 0 {
		if len(rest) < 2 {
			slog.Warn("space left in packet not big enough for an IE",
				"remaining", len(rest))
			break
		}
		datalen := int(rest[1])
		if datalen > len(rest)-2 {
			slog.Warn("IE datalen greater than bytes left in packet",
				"datalen", datalen, "remaining", len(rest))
			break
		}
		f.ies = append(f.ies, IE{
			Type: IEType(rest[0]),
			Data: append([]byte(nil), rest[2:2+datalen]...),
		})
		rest = rest[2+datalen:]
	}

	return nil
}

func (f *Frame) parseMini(buf []byte) error {
	if len(buf) < miniHeaderLen {
		return ErrShortFrame
	}

	f.shell = ShellMini
	f.sourceCallNum = binary.BigEndian.Uint16(buf[0:2])
	f.timestamp = uint32(binary.BigEndian.Uint16(buf[2:4]))
	f.rawData = append([]byte(nil), buf[miniHeaderLen:]...)

	return nil
}

func (f *Frame) parseMeta(buf []byte) error {
	if len(buf) < metaHeaderLen {
		return ErrShortFrame
	}

	f.shell = ShellMeta
	if buf[2] != metaCmdVideo {
		return fmt.Errorf("%w 0x%02x", ErrUnknownMetaCommand, buf[2])
	}
	f.metaType = MetaVideo

	if len(buf) <= metaVideoHeaderLen {
		return ErrShortFrame
	}
	f.sourceCallNum = binary.BigEndian.Uint16(buf[2:4]) & 0x7FFF
	f.timestamp = uint32(binary.BigEndian.Uint16(buf[4:6]))
	f.rawData = append([]byte(nil), buf[metaVideoHeaderLen:]...)

	return nil
}

// Encode serializes the frame for the wire. The frame must have direction
// DirectionOut. Encode does not mark the frame as a retransmission; the
// sender does that after a successful send so a later re-send carries the
// flag.
func (f *Frame) Encode() ([]byte, error) {
	if f.direction != DirectionOut {
		return nil, ErrNotOutbound
	}

	switch f.shell {
	case ShellFull:
		return f.encodeFull(), nil
	case ShellMini:
		return f.encodeMini(), nil
	case ShellMeta:
		if f.metaType != MetaVideo {
			return nil, ErrUnknownMetaCommand
		}
		return f.encodeMetaVideo(), nil
	}
	return nil, ErrUnknownShell
}

func (f *Frame) encodeFull() []byte {
	ieLen := 0
	for _, ie := range f.ies {
		ieLen += 2 + len(ie.Data)
	}

	buf := make([]byte, fullHeaderLen, fullHeaderLen+ieLen+len(f.rawData))
	binary.BigEndian.PutUint16(buf[0:2], f.sourceCallNum|0x8000)
	dcallno := f.destCallNum
	if f.retransmission {
		dcallno |= 0x8000
	}
	binary.BigEndian.PutUint16(buf[2:4], dcallno)
	binary.BigEndian.PutUint32(buf[4:8], f.timestamp)
	buf[8] = f.outSeqNum
	buf[9] = f.inSeqNum
	buf[10] = byte(f.typ)
	csub := byte(f.subclass)
	if f.subclassCoded {
		csub |= 0x80
	}
	buf[11] = csub

	for _, ie := range f.ies {
		buf = append(buf, byte(ie.Type), byte(len(ie.Data)))
		buf = append(buf, ie.Data...)
	}
	buf = append(buf, f.rawData...)

	return buf
}

func (f *Frame) encodeMini() []byte {
	buf := make([]byte, miniHeaderLen, miniHeaderLen+len(f.rawData))
	binary.BigEndian.PutUint16(buf[0:2], f.sourceCallNum&^0x8000)
	binary.BigEndian.PutUint16(buf[2:4], uint16(f.timestamp))
	return append(buf, f.rawData...)
}

func (f *Frame) encodeMetaVideo() []byte {
	buf := make([]byte, metaVideoHeaderLen, metaVideoHeaderLen+len(f.rawData))
	binary.BigEndian.PutUint16(buf[0:2], 0)
	binary.BigEndian.PutUint16(buf[2:4], f.sourceCallNum|0x8000)
	binary.BigEndian.PutUint16(buf[4:6], uint16(f.timestamp))
	return append(buf, f.rawData...)
}

// AddIE appends an Information Element. Data longer than MaxIEDataLen is
// refused; the frame is returned unchanged.
func (f *Frame) AddIE(t IEType, data []byte) *Frame {
	if len(data) > MaxIEDataLen {
		slog.Warn("IE data too long, element dropped", "type", t, "len", len(data))
		return f
	}
	f.ies = append(f.ies, IE{Type: t, Data: append([]byte(nil), data...)})
	return f
}

// AddIEString appends an IE whose data is the raw bytes of s, not
// null-terminated.
func (f *Frame) AddIEString(t IEType, s string) *Frame {
	return f.AddIE(t, []byte(s))
}

// AddIEUint16 appends an IE with a big-endian u16 payload.
func (f *Frame) AddIEUint16(t IEType, n uint16) *Frame {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], n)
	return f.AddIE(t, b[:])
}

// AddIEUint32 appends an IE with a big-endian u32 payload.
func (f *Frame) AddIEUint32(t IEType, n uint32) *Frame {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return f.AddIE(t, b[:])
}

// IEString returns the data of the first IE of the given type as a string.
func (f *Frame) IEString(t IEType) (string, bool) {
	for _, ie := range f.ies {
		if ie.Type == t {
			return string(ie.Data), true
		}
	}
	return "", false
}

// IEUint16 returns the first IE of the given type decoded as a big-endian
// u16.
func (f *Frame) IEUint16(t IEType) (uint16, bool) {
	for _, ie := range f.ies {
		if ie.Type == t {
			return ie.Uint16()
		}
	}
	return 0, false
}

// IEUint32 returns the first IE of the given type decoded as a big-endian
// u32.
func (f *Frame) IEUint32(t IEType) (uint32, bool) {
	for _, ie := range f.ies {
		if ie.Type == t {
			return ie.Uint32()
		}
	}
	return 0, false
}

// IEs returns the frame's Information Elements in wire order.
func (f *Frame) IEs() []IE { return f.ies }

func (f *Frame) Direction() Direction { return f.direction }
func (f *Frame) SetDirection(d Direction) *Frame {
	f.direction = d
	return f
}

func (f *Frame) Shell() Shell { return f.shell }
func (f *Frame) SetShell(s Shell) *Frame {
	f.shell = s
	return f
}

func (f *Frame) Type() Type { return f.typ }
func (f *Frame) SetType(t Type) *Frame {
	f.typ = t
	return f
}

func (f *Frame) MetaType() MetaType { return f.metaType }
func (f *Frame) SetMetaType(m MetaType) *Frame {
	f.metaType = m
	return f
}

func (f *Frame) Subclass() Subclass { return f.subclass }
func (f *Frame) SetSubclass(s Subclass) *Frame {
	f.subclass = s
	return f
}

// SubclassCoded reports whether the subclass is coded as a power-of-two
// index (the csub high bit). The bit round-trips through Parse and Encode
// even though no dialog here produces a coded subclass.
func (f *Frame) SubclassCoded() bool { return f.subclassCoded }
func (f *Frame) SetSubclassCoded(coded bool) *Frame {
	f.subclassCoded = coded
	return f
}

func (f *Frame) SourceCallNum() uint16 { return f.sourceCallNum }
func (f *Frame) SetSourceCallNum(n uint16) *Frame {
	f.sourceCallNum = n
	return f
}

func (f *Frame) DestCallNum() uint16 { return f.destCallNum }
func (f *Frame) SetDestCallNum(n uint16) *Frame {
	f.destCallNum = n
	return f
}

func (f *Frame) OutSeqNum() uint8 { return f.outSeqNum }
func (f *Frame) SetOutSeqNum(n uint8) *Frame {
	f.outSeqNum = n
	return f
}

func (f *Frame) InSeqNum() uint8 { return f.inSeqNum }
func (f *Frame) SetInSeqNum(n uint8) *Frame {
	f.inSeqNum = n
	return f
}

func (f *Frame) Timestamp() uint32 { return f.timestamp }
func (f *Frame) SetTimestamp(ts uint32) *Frame {
	f.timestamp = ts
	return f
}

func (f *Frame) Retransmission() bool { return f.retransmission }
func (f *Frame) SetRetransmission(retrans bool) *Frame {
	f.retransmission = retrans
	return f
}

func (f *Frame) RawData() []byte { return f.rawData }
func (f *Frame) SetRawData(data []byte) *Frame {
	f.rawData = append([]byte(nil), data...)
	return f
}

// String renders a one-line summary of the frame for logs and the demo
// tools.
func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s-[%s", f.direction, f.shell)
	if f.retransmission {
		b.WriteString("-Retransmission")
	}
	b.WriteString("]")

	switch f.shell {
	case ShellFull:
		fmt.Fprintf(&b, " Type: %s  Subclass: %s  Src: %d  Dst: %d  OSeq: %d  ISeq: %d  Ts: %d",
			f.typ, f.subclassName(), f.sourceCallNum, f.destCallNum,
			f.outSeqNum, f.inSeqNum, f.timestamp)
		for _, ie := range f.ies {
			fmt.Fprintf(&b, "  IE: %s", ie)
		}
		if len(f.rawData) > 0 {
			fmt.Fprintf(&b, "  DataLen: %d", len(f.rawData))
		}
	case ShellMini:
		fmt.Fprintf(&b, " Src: %d  Ts: %d  DataLen: %d",
			f.sourceCallNum, f.timestamp, len(f.rawData))
	case ShellMeta:
		fmt.Fprintf(&b, " Type: %s  Src: %d  Ts: %d  DataLen: %d",
			f.metaType, f.sourceCallNum, f.timestamp, len(f.rawData))
	}

	return b.String()
}

// subclassName renders the subclass for display: IAX2 frames use the
// signalling names, everything else is numeric.
func (f *Frame) subclassName() string {
	if f.typ == TypeIAX2 {
		return f.subclass.String()
	}
	return fmt.Sprintf("%d", f.subclass)
}
