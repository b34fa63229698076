package dialog

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/looplab/fsm"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

// Call dialog states.
const (
	callStateDown       = "down"
	callStateNewSent    = "new_sent"
	callStateAcceptSent = "accept_sent"
	callStateRejectSent = "reject_sent"
	callStateUp         = "up"
	callStateHangupSent = "hangup_sent"
)

const (
	callEventCall         = "call"
	callEventAccept       = "accept"
	callEventReject       = "reject"
	callEventEstablish    = "establish"
	callEventRemoteReject = "remote_reject"
	callEventAckReject    = "ack_reject"
	callEventHangup       = "hangup"
)

// Call is the call dialog. Both the originating side (Start sends NEW) and
// the answering side (NEW received while down) run the same machine.
type Call struct {
	base
	fsm       *fsm.FSM
	startTime time.Time

	peerCapabilities uint32
	actualFormats    uint32

	// frameQueue holds sent full frames until an ACK's in-seq passes
	// their out-seq; until then they are re-sent on every timer tick and
	// on reliable activity.
	frameQueue []*frame.Frame
}

// NewCall creates a call dialog talking to addr.
func NewCall(p Peer, callNum uint16, addr *net.UDPAddr) *Call {
	d := &Call{
		base: base{
			callNum:    callNum,
			remoteAddr: addr,
			peer:       p,
		},
	}
	d.self = d
	d.fsm = fsm.NewFSM(
		callStateDown,
		fsm.Events{
			{Name: callEventCall, Src: []string{callStateDown}, Dst: callStateNewSent},
			{Name: callEventAccept, Src: []string{callStateDown}, Dst: callStateAcceptSent},
			{Name: callEventReject, Src: []string{callStateDown}, Dst: callStateRejectSent},
			{Name: callEventEstablish, Src: []string{callStateNewSent, callStateAcceptSent}, Dst: callStateUp},
			{Name: callEventRemoteReject, Src: []string{callStateNewSent}, Dst: callStateDown},
			{Name: callEventAckReject, Src: []string{callStateRejectSent}, Dst: callStateDown},
			{Name: callEventHangup, Src: []string{
				callStateDown, callStateNewSent, callStateAcceptSent,
				callStateRejectSent, callStateUp, callStateHangupSent,
			}, Dst: callStateHangupSent},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				slog.Debug("call dialog state change", "call_num", d.callNum,
					"from", e.Src, "to", e.Dst)
			},
		},
	)
	return d
}

// transition fires an fsm event; an invalid transition is a programming
// error on this machine, so it is only logged.
func (d *Call) transition(name string) {
	if err := d.fsm.Event(context.Background(), name); err != nil {
		slog.Error("call dialog transition failed", "call_num", d.callNum,
			"event", name, "error", err)
	}
}

// Start originates the call: send NEW with our protocol version,
// capability mask and preferred format, and arm the retransmission timer.
func (d *Call) Start() error {
	if err := d.fsm.Event(context.Background(), callEventCall); err != nil {
		return err
	}

	// Armed before the send in case the packet must be retransmitted.
	d.scheduleTimer(retransmitInterval)

	d.startTime = time.Now()

	f := d.newFrame(frame.SubclassNew)
	f.SetOutSeqNum(d.outSeqNum).
		SetTimestamp(0).
		AddIEUint16(frame.IEVersion, 2).
		AddIEUint32(frame.IECapability, d.peer.Capabilities()).
		AddIEUint32(frame.IEFormat, d.peer.PreferredFormat())
	d.outSeqNum++

	return d.peer.SendFrame(f, d.remoteAddr)
}

func (d *Call) ProcessIncomingFrame(f *frame.Frame, src *net.UDPAddr) Result {
	if d.gate(f) {
		return ResultSuccess
	}

	switch d.fsm.Current() {
	case callStateDown:
		return d.processDown(f, src)
	case callStateNewSent:
		return d.processNewSent(f)
	case callStateAcceptSent:
		return d.processAcceptSent(f)
	case callStateRejectSent:
		return d.processRejectSent(f)
	case callStateHangupSent:
		return d.processHangupSent(f)
	case callStateUp:
		return d.processUp(f)
	}

	return ResultInval
}

// processDown answers an incoming NEW: negotiate codecs against the
// caller's CAPABILITY mask and reply ACCEPT or, with no common format,
// REJECT.
func (d *Call) processDown(f *frame.Frame, src *net.UDPAddr) Result {
	if f.Shell() != frame.ShellFull ||
		f.Type() != frame.TypeIAX2 ||
		f.Subclass() != frame.SubclassNew {
		return ResultInval
	}

	d.startTime = time.Now()
	d.destCallNum = f.SourceCallNum()
	d.remoteAddr = src
	d.peerCapabilities, _ = f.IEUint32(frame.IECapability)
	d.actualFormats = d.peer.ChooseFormats(d.peerCapabilities)

	slog.Debug("codec negotiation",
		"call_num", d.callNum,
		"our_capabilities", d.peer.Capabilities(),
		"peer_capabilities", d.peerCapabilities,
		"common", d.peer.Capabilities()&d.peerCapabilities,
		"actual_formats", d.actualFormats)

	var reply *frame.Frame
	if d.actualFormats != 0 {
		reply = d.newFrame(frame.SubclassAccept)
		d.transition(callEventAccept)
	} else {
		reply = d.newFrame(frame.SubclassReject)
		d.transition(callEventReject)
	}
	reply.SetOutSeqNum(d.outSeqNum).
		SetTimestamp(0).
		AddIEUint32(frame.IEFormat, d.actualFormats)
	d.outSeqNum++
	d.send(reply)

	d.stopTimer()

	return ResultSuccess
}

// processNewSent handles the callee's answer to our NEW.
func (d *Call) processNewSent(f *frame.Frame) Result {
	if f.Shell() != frame.ShellFull ||
		f.Type() != frame.TypeIAX2 ||
		(f.Subclass() != frame.SubclassAccept && f.Subclass() != frame.SubclassReject) {
		return ResultInval
	}

	d.destCallNum = f.SourceCallNum()
	d.sendAck()
	d.stopTimer()

	if f.Subclass() == frame.SubclassAccept {
		d.transition(callEventEstablish)
		return ResultSuccess
	}
	d.transition(callEventRemoteReject)
	return ResultDestroy
}

func (d *Call) processAcceptSent(f *frame.Frame) Result {
	if !isIAX2Subclass(f, frame.SubclassAck) {
		return ResultInval
	}

	d.stopTimer()

	d.peer.QueueEvent(event.New(event.TypeCallEstablished, d.callNum,
		event.Str(d.remoteAddr.IP.String())))

	d.transition(callEventEstablish)
	return ResultSuccess
}

func (d *Call) processRejectSent(f *frame.Frame) Result {
	if !isIAX2Subclass(f, frame.SubclassAck) {
		return ResultInval
	}

	d.stopTimer()
	d.transition(callEventAckReject)
	return ResultDestroy
}

func (d *Call) processHangupSent(f *frame.Frame) Result {
	if !isIAX2Subclass(f, frame.SubclassAck) {
		return ResultInval
	}
	return ResultDestroy
}

func (d *Call) processUp(f *frame.Frame) Result {
	switch {
	case f.Shell() == frame.ShellFull && f.Type() == frame.TypeText:
		d.peer.QueueEvent(event.New(event.TypeText, d.callNum,
			event.Str(string(f.RawData()))))
		d.retransmitFrameQueue()
		d.sendAck()
		return ResultSuccess

	case isIAX2Subclass(f, frame.SubclassHangup):
		d.sendAck()
		d.peer.QueueEvent(event.New(event.TypeCallHangup, d.callNum,
			event.Str(d.remoteAddr.IP.String())))
		return ResultDestroy

	case isIAX2Subclass(f, frame.SubclassAck):
		// Drop queued full frames the ACK covers; out-seqs strictly
		// below the ACK's in-seq are acknowledged.
		for len(d.frameQueue) > 0 &&
			d.frameQueue[0].OutSeqNum() < f.InSeqNum() {
			d.frameQueue = d.frameQueue[1:]
		}
		d.retransmitFrameQueue()
		return ResultSuccess

	case f.Shell() == frame.ShellMeta && f.MetaType() == frame.MetaVideo:
		d.peer.QueueEvent(event.New(event.TypeVideo, d.callNum,
			&event.Media{Data: f.RawData(), Timestamp: uint16(f.Timestamp())}))
		return ResultSuccess

	case f.Shell() == frame.ShellMini:
		d.peer.QueueEvent(event.New(event.TypeAudio, d.callNum,
			&event.Media{Data: f.RawData(), Timestamp: uint16(f.Timestamp())}))
		return ResultSuccess
	}

	return ResultInval
}

func (d *Call) ProcessCommand(cmd *command.Command) CommandResult {
	switch {
	case cmd.Type() == command.TypeHangup:
		d.retransmitFrameQueue()

		f := d.newFrame(frame.SubclassHangup)
		f.SetOutSeqNum(d.outSeqNum).
			SetTimestamp(msSince(d.startTime))
		d.outSeqNum++
		d.send(f)

		d.transition(callEventHangup)
		if d.timerID == 0 {
			d.scheduleTimer(retransmitInterval)
		}
		return CommandSuccess

	case d.fsm.Current() == callStateUp && cmd.Type() == command.TypeText:
		d.retransmitFrameQueue()

		f := frame.New().
			SetDirection(frame.DirectionOut).
			SetShell(frame.ShellFull).
			SetType(frame.TypeText).
			SetSourceCallNum(d.callNum).
			SetDestCallNum(d.destCallNum).
			SetInSeqNum(d.inSeqNum).
			SetOutSeqNum(d.outSeqNum).
			SetTimestamp(msSince(d.startTime)).
			SetRawData([]byte(cmd.Str()))
		d.outSeqNum++
		d.send(f)

		// Reliable frame: held until an ACK covers it, re-sent on every
		// timer tick until then.
		d.frameQueue = append(d.frameQueue, f)
		if d.timerID == 0 {
			d.scheduleTimer(retransmitInterval)
		}

		return CommandSuccess

	case d.fsm.Current() == callStateUp && cmd.Type() == command.TypeVideo:
		// TODO: check for timestamp wraparound and send a FULL frame to
		// resync the high bits.
		f := frame.New().
			SetDirection(frame.DirectionOut).
			SetShell(frame.ShellMeta).
			SetMetaType(frame.MetaVideo).
			SetSourceCallNum(d.callNum).
			SetTimestamp(msSince(d.startTime)).
			SetRawData(cmd.Raw())
		d.send(f)

		return CommandSuccess

	case d.fsm.Current() == callStateUp && cmd.Type() == command.TypeAudio:
		f := frame.New().
			SetDirection(frame.DirectionOut).
			SetShell(frame.ShellMini).
			SetSourceCallNum(d.callNum).
			SetTimestamp(msSince(d.startTime)).
			SetRawData(cmd.Raw())
		d.send(f)

		return CommandSuccess
	}

	return CommandUnsupported
}

// TimerCallback retransmits whatever reliable traffic the current state
// has outstanding, then re-arms itself. It does not re-arm once the Up
// state's frame queue is empty, nor in states with nothing to retransmit.
func (d *Call) TimerCallback() Result {
	switch d.fsm.Current() {
	case callStateNewSent:
		f := d.newFrame(frame.SubclassNew)
		f.SetOutSeqNum(d.outSeqNum-1).
			SetRetransmission(true).
			AddIEUint16(frame.IEVersion, 2).
			AddIEUint32(frame.IECapability, d.peer.Capabilities()).
			AddIEUint32(frame.IEFormat, d.peer.PreferredFormat())
		d.send(f)

	case callStateHangupSent:
		f := d.newFrame(frame.SubclassHangup)
		f.SetOutSeqNum(d.outSeqNum - 1).
			SetRetransmission(true)
		d.send(f)

	case callStateUp:
		if len(d.frameQueue) == 0 {
			// Everything got acknowledged; nothing left to drive.
			return ResultSuccess
		}
		d.retransmitFrameQueue()

	default:
		slog.Warn("call dialog timer in unexpected state",
			"call_num", d.callNum, "state", d.fsm.Current())
		// Return without re-arming the timer.
		return ResultSuccess
	}

	d.scheduleTimer(retransmitInterval)

	return ResultSuccess
}

// ActualFormats is the negotiated format mask, zero before negotiation or
// when no format was common.
func (d *Call) ActualFormats() uint32 { return d.actualFormats }

func (d *Call) retransmitFrameQueue() {
	for _, f := range d.frameQueue {
		f.SetRetransmission(true)
		d.send(f)
	}
}

// sendAck acknowledges the frame just processed, timestamped relative to
// the call's start.
func (d *Call) sendAck() {
	f := d.newFrame(frame.SubclassAck)
	f.SetOutSeqNum(d.outSeqNum).
		SetTimestamp(msSince(d.startTime))
	d.outSeqNum++
	d.send(f)
}

// newFrame builds the skeleton of an outbound FULL IAX2 frame for this
// dialog. The caller fills the out-seq, timestamp and IEs.
func (d *Call) newFrame(sc frame.Subclass) *frame.Frame {
	return frame.New().
		SetDirection(frame.DirectionOut).
		SetShell(frame.ShellFull).
		SetType(frame.TypeIAX2).
		SetSubclass(sc).
		SetSourceCallNum(d.callNum).
		SetDestCallNum(d.destCallNum).
		SetInSeqNum(d.inSeqNum)
}

func isIAX2Subclass(f *frame.Frame, sc frame.Subclass) bool {
	return f.Shell() == frame.ShellFull &&
		f.Type() == frame.TypeIAX2 &&
		f.Subclass() == sc
}
