// Package transport owns the UDP socket an IAX2 peer multiplexes all
// signalling and media over. A read loop feeds received datagrams into a
// channel consumed by the peer's protocol goroutine; writes go straight to
// the socket.
package transport

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// maxDatagram bounds a received IAX2 datagram. The protocol caps media
// payloads well below this.
const maxDatagram = 4096

// packetBacklog is the depth of the inbound packet channel; the read loop
// drops datagrams when the protocol goroutine falls this far behind.
const packetBacklog = 128

// Packet is one received datagram and its source address.
type Packet struct {
	Data []byte
	Addr *net.UDPAddr
}

// Stats are cumulative transport counters.
type Stats struct {
	PacketsReceived uint64
	PacketsSent     uint64
	BytesReceived   uint64
	BytesSent       uint64
	Dropped         uint64
	Errors          uint64
}

// UDPTransport is the datagram transport for one peer.
type UDPTransport struct {
	conn      *net.UDPConn
	localAddr *net.UDPAddr
	packets   chan Packet
	closed    atomic.Bool
	wg        sync.WaitGroup

	packetsReceived atomic.Uint64
	packetsSent     atomic.Uint64
	bytesReceived   atomic.Uint64
	bytesSent       atomic.Uint64
	dropped         atomic.Uint64
	errors          atomic.Uint64
}

// NewUDP returns an unbound transport.
func NewUDP() *UDPTransport {
	return &UDPTransport{
		packets: make(chan Packet, packetBacklog),
	}
}

// Listen binds the socket and starts the read loop. addr uses the usual
// "host:port" form; port 0 binds an ephemeral port, readable afterwards
// via LocalAddr.
func (t *UDPTransport) Listen(addr string) error {
	if t.conn != nil {
		return ErrAlreadyListening
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}

	tuneSocketBuffers(conn)

	t.conn = conn
	t.localAddr = conn.LocalAddr().(*net.UDPAddr)

	t.wg.Add(1)
	go t.readLoop()

	return nil
}

// LocalAddr is the bound address, nil before Listen.
func (t *UDPTransport) LocalAddr() *net.UDPAddr { return t.localAddr }

// Packets is the inbound datagram channel. It is closed when the
// transport shuts down.
func (t *UDPTransport) Packets() <-chan Packet { return t.packets }

// WriteTo sends one datagram.
func (t *UDPTransport) WriteTo(data []byte, addr *net.UDPAddr) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if t.conn == nil {
		return ErrNotListening
	}

	n, err := t.conn.WriteToUDP(data, addr)
	if err != nil {
		t.errors.Add(1)
		return err
	}

	t.packetsSent.Add(1)
	t.bytesSent.Add(uint64(n))
	return nil
}

// Close stops the read loop and closes the socket. The packet channel is
// closed once the read loop has exited.
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.conn != nil {
		t.conn.Close()
	}
	t.wg.Wait()
	return nil
}

// Stats returns a snapshot of the transport counters.
func (t *UDPTransport) Stats() Stats {
	return Stats{
		PacketsReceived: t.packetsReceived.Load(),
		PacketsSent:     t.packetsSent.Load(),
		BytesReceived:   t.bytesReceived.Load(),
		BytesSent:       t.bytesSent.Load(),
		Dropped:         t.dropped.Load(),
		Errors:          t.errors.Load(),
	}
}

func (t *UDPTransport) readLoop() {
	defer t.wg.Done()
	defer close(t.packets)

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed.Load() {
				return
			}
			t.errors.Add(1)
			if isTemporary(err) {
				continue
			}
			slog.Error("udp read failed", "error", err)
			return
		}

		t.packetsReceived.Add(1)
		t.bytesReceived.Add(uint64(n))

		pkt := Packet{Data: append([]byte(nil), buf[:n]...), Addr: addr}
		select {
		case t.packets <- pkt:
		default:
			// Backlog full; dropping is what the UDP stack would do to
			// us anyway.
			t.dropped.Add(1)
		}
	}
}
