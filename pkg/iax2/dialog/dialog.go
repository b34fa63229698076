// Package dialog implements the per-exchange IAX2 state machines: outbound
// registration, inbound registrar, call and lag. A dialog processes one
// incoming frame, one application command, or one timer tick at a time and
// returns a result telling the owning peer how to manage its lifecycle.
//
// All dialog methods run on the peer's protocol goroutine; dialogs hold no
// locks of their own.
package dialog

import (
	"log/slog"
	"net"
	"time"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

// DefaultRefresh is the registration refresh interval offered to
// registering peers and used for responder-side retransmit timers.
const DefaultRefresh = 10 * time.Second

// Result instructs the peer what to do with a dialog after it processed a
// frame or a timer tick.
type Result int

const (
	// ResultSuccess: keep the dialog.
	ResultSuccess Result = iota
	// ResultInval: the frame is not valid in the dialog's current state.
	ResultInval
	// ResultDestroy: remove the dialog from the peer's table and free it.
	ResultDestroy
	// ResultDelete: free the dialog; it is not in the peer's table.
	ResultDelete
)

// CommandResult is the outcome of handing an application command to a
// dialog.
type CommandResult int

const (
	CommandSuccess CommandResult = iota
	CommandNoCall
	CommandUnsupported
)

// Peer is the part of the owning peer a dialog needs: timers, event
// delivery, frame transmission and codec capabilities.
type Peer interface {
	// StartTimer schedules a timer callback for d at fireAt and returns
	// the timer id (never zero).
	StartTimer(d Dialog, fireAt time.Time) uint32
	// StopTimer cancels a pending timer by id.
	StopTimer(id uint32)
	// QueueEvent hands an event to the dispatch worker.
	QueueEvent(ev *event.Event)
	// SendFrame encodes and transmits a frame, marking it as a
	// retransmission for any later re-send.
	SendFrame(f *frame.Frame, addr *net.UDPAddr) error
	// Capabilities is the peer's codec capability bitmask.
	Capabilities() uint32
	// PreferredFormat is the preferred codec resolved from the
	// capability bitmask.
	PreferredFormat() uint32
	// ChooseFormats intersects the peer's capabilities with the remote
	// side's and picks at most one audio and one video format.
	ChooseFormats(peerCapabilities uint32) uint32
	// ReferenceTime is the peer's construction timestamp, the zero point
	// for lag timestamps.
	ReferenceTime() time.Time
}

// Server extends Peer with the registrar-side registration table.
type Server interface {
	Peer
	// RegisterPeer records a completed inbound registration.
	RegisterPeer(username string, addr *net.UDPAddr)
}

// Dialog is one protocol exchange owned by a peer, keyed by its local call
// number.
type Dialog interface {
	// CallNum is the local call number, unique within the owning peer.
	CallNum() uint16
	// RemoteCallNum is the remote side's call number, zero until learned.
	RemoteCallNum() uint16
	// RemoteAddr is the remote address the dialog is talking to.
	RemoteAddr() *net.UDPAddr
	// ProcessIncomingFrame applies the shared sequence discipline for
	// FULL frames and runs the variant state machine.
	ProcessIncomingFrame(f *frame.Frame, src *net.UDPAddr) Result
	// ProcessCommand handles an application command.
	ProcessCommand(cmd *command.Command) CommandResult
	// TimerCallback runs when the dialog's scheduled timer fires.
	TimerCallback() Result
	// Stop cancels the dialog's pending timer, if any. The peer calls it
	// when destroying the dialog so a fired timer cannot reach a freed
	// dialog.
	Stop()
	// ClearTimer forgets the pending timer id. The peer calls it when
	// the timer fires, keeping the invariant that a non-zero id always
	// names a live timer queue entry.
	ClearTimer()
}

// base carries the state shared by every dialog variant. The variant
// stores itself in self so shared helpers can schedule timers for the
// concrete dialog.
type base struct {
	callNum     uint16
	destCallNum uint16
	outSeqNum   uint8
	inSeqNum    uint8
	remoteAddr  *net.UDPAddr
	peer        Peer
	timerID     uint32
	self        Dialog
}

func (d *base) CallNum() uint16          { return d.callNum }
func (d *base) RemoteCallNum() uint16    { return d.destCallNum }
func (d *base) RemoteAddr() *net.UDPAddr { return d.remoteAddr }

func (d *base) Stop() { d.stopTimer() }

func (d *base) ClearTimer() { d.timerID = 0 }

// gate applies the shared sequence-number discipline to a FULL frame.
// It reports true when the frame was consumed: duplicates and out-of-order
// frames are dropped here so the variant logic sees each frame at most
// once. MINI and META frames bypass sequencing.
func (d *base) gate(f *frame.Frame) bool {
	if f.Shell() != frame.ShellFull {
		return false
	}

	if f.OutSeqNum() < d.inSeqNum {
		// Already received. Silently ignore it.
		slog.Debug("duplicate frame received", "call_num", d.callNum,
			"out_seq_num", f.OutSeqNum())
		return true
	}
	if f.OutSeqNum() > d.inSeqNum {
		// Still waiting for a previous frame. For now it is just
		// dropped; queueing it and requesting a VNAK would be better.
		slog.Warn("frame received out of order", "call_num", d.callNum,
			"got", f.OutSeqNum(), "expecting", d.inSeqNum)
		return true
	}

	d.inSeqNum++
	return false
}

func (d *base) stopTimer() {
	if d.timerID != 0 {
		d.peer.StopTimer(d.timerID)
		d.timerID = 0
	}
}

func (d *base) scheduleTimer(in time.Duration) {
	d.timerID = d.peer.StartTimer(d.self, time.Now().Add(in))
}

func (d *base) send(f *frame.Frame) {
	if err := d.peer.SendFrame(f, d.remoteAddr); err != nil {
		slog.Error("frame send failed", "call_num", d.callNum, "error", err)
	}
}

// msSince returns the milliseconds elapsed since t, the protocol's
// timestamp arithmetic.
func msSince(t time.Time) uint32 {
	return uint32(time.Since(t).Milliseconds())
}
