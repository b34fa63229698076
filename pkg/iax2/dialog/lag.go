package dialog

import (
	"log/slog"
	"net"
	"time"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

type lagState int

const (
	lagStateNone lagState = iota
	lagStateLagrqSent
	lagStateLagrpSent
	lagStateLagrqRcvd
	lagStateLagrpRcvd
)

// lagRetransmitInterval is the requester-side retransmission interval for
// an unanswered LAGRQ.
const lagRetransmitInterval = 5 * time.Second

// Lag measures round-trip lag. The requester sends LAGRQ with a timestamp
// relative to its peer's reference time; the responder echoes it in LAGRP;
// the requester ACKs and reports now-minus-echo as the lag.
type Lag struct {
	base
	state     lagState
	startTime time.Time
	// echoTimestamp is the request timestamp the responder echoed, kept
	// for LAGRP retransmissions.
	echoTimestamp uint32
}

// NewLag creates a lag dialog talking to addr. The requester side calls
// Start; the responder side just feeds it the incoming LAGRQ.
func NewLag(p Peer, callNum uint16, addr *net.UDPAddr) *Lag {
	d := &Lag{
		base: base{
			callNum:    callNum,
			remoteAddr: addr,
			peer:       p,
		},
	}
	d.self = d
	return d
}

// Start sends the initial LAGRQ and arms the retransmission timer.
func (d *Lag) Start() error {
	d.state = lagStateLagrqSent
	d.startTime = time.Now()

	f := frame.New().
		SetDirection(frame.DirectionOut).
		SetShell(frame.ShellFull).
		SetType(frame.TypeIAX2).
		SetSubclass(frame.SubclassLagRq).
		SetSourceCallNum(d.callNum).
		SetInSeqNum(d.inSeqNum).
		SetOutSeqNum(d.outSeqNum).
		SetTimestamp(uint32(d.startTime.Sub(d.peer.ReferenceTime()).Milliseconds()))
	d.outSeqNum++

	d.scheduleTimer(lagRetransmitInterval)

	return d.peer.SendFrame(f, d.remoteAddr)
}

func (d *Lag) ProcessIncomingFrame(f *frame.Frame, src *net.UDPAddr) Result {
	if d.gate(f) {
		return ResultSuccess
	}

	switch d.state {
	case lagStateNone:
		if !isIAX2Subclass(f, frame.SubclassLagRq) {
			return ResultInval
		}

		d.destCallNum = f.SourceCallNum()
		d.echoTimestamp = f.Timestamp()

		reply := frame.New().
			SetDirection(frame.DirectionOut).
			SetShell(frame.ShellFull).
			SetType(frame.TypeIAX2).
			SetSubclass(frame.SubclassLagRp).
			SetSourceCallNum(d.callNum).
			SetDestCallNum(d.destCallNum).
			SetInSeqNum(d.inSeqNum).
			SetOutSeqNum(d.outSeqNum).
			SetTimestamp(d.echoTimestamp)
		d.outSeqNum++
		d.send(reply)

		d.state = lagStateLagrpSent

		// Keep retransmitting the reply until the requester ACKs.
		d.scheduleTimer(DefaultRefresh)

		return ResultSuccess

	case lagStateLagrpSent:
		if !isIAX2Subclass(f, frame.SubclassAck) {
			d.state = lagStateNone
			return ResultInval
		}
		d.state = lagStateNone
		return ResultDestroy

	case lagStateLagrqSent:
		if !isIAX2Subclass(f, frame.SubclassLagRp) {
			return ResultInval
		}

		ack := frame.New().
			SetDirection(frame.DirectionOut).
			SetShell(frame.ShellFull).
			SetType(frame.TypeIAX2).
			SetSubclass(frame.SubclassAck).
			SetSourceCallNum(d.callNum).
			SetDestCallNum(f.SourceCallNum()).
			SetInSeqNum(d.inSeqNum).
			SetOutSeqNum(d.outSeqNum).
			SetTimestamp(f.Timestamp())
		d.outSeqNum++
		if err := d.peer.SendFrame(ack, src); err != nil {
			slog.Error("lag ack send failed", "call_num", d.callNum, "error", err)
		}

		d.state = lagStateNone
		d.stopTimer()

		lag := msSince(d.peer.ReferenceTime()) - f.Timestamp()
		d.peer.QueueEvent(event.New(event.TypeLag, d.callNum, event.Uint(lag)))

		return ResultDestroy
	}

	return ResultInval
}

// ProcessCommand: the lag dialog takes no application commands.
func (d *Lag) ProcessCommand(cmd *command.Command) CommandResult {
	return CommandUnsupported
}

func (d *Lag) TimerCallback() Result {
	switch d.state {
	case lagStateLagrpSent:
		f := frame.New().
			SetDirection(frame.DirectionOut).
			SetShell(frame.ShellFull).
			SetType(frame.TypeIAX2).
			SetSubclass(frame.SubclassLagRp).
			SetSourceCallNum(d.callNum).
			SetDestCallNum(d.destCallNum).
			SetInSeqNum(d.inSeqNum).
			SetOutSeqNum(d.outSeqNum - 1).
			SetRetransmission(true).
			SetTimestamp(d.echoTimestamp)
		d.send(f)

		d.scheduleTimer(DefaultRefresh)
		return ResultSuccess

	case lagStateLagrqSent:
		f := frame.New().
			SetDirection(frame.DirectionOut).
			SetShell(frame.ShellFull).
			SetType(frame.TypeIAX2).
			SetSubclass(frame.SubclassLagRq).
			SetSourceCallNum(d.callNum).
			SetInSeqNum(d.inSeqNum).
			SetOutSeqNum(d.outSeqNum - 1).
			SetRetransmission(true).
			SetTimestamp(uint32(d.startTime.Sub(d.peer.ReferenceTime()).Milliseconds()))
		d.send(f)

		d.scheduleTimer(lagRetransmitInterval)
		return ResultSuccess
	}

	return ResultInval
}
