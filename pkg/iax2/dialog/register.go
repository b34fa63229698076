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

// Outbound-register dialog states.
const (
	registerStateNone       = "none"
	registerStateRegreqSent = "regreq_sent"
)

const (
	registerEventSend   = "send"
	registerEventRegack = "regack"
)

// retransmitInterval is how long a dialog waits for a reply before
// re-sending its last reliable frame.
const retransmitInterval = time.Second

// Register is the outbound registration dialog. A single instance persists
// for the lifetime of the registration and loops none → regreq_sent → none
// to refresh it.
type Register struct {
	base
	fsm      *fsm.FSM
	username string
}

// NewRegister creates an outbound registration dialog targeting the
// registrar at addr.
func NewRegister(p Peer, callNum uint16, addr *net.UDPAddr) *Register {
	d := &Register{
		base: base{
			callNum:    callNum,
			remoteAddr: addr,
			peer:       p,
		},
	}
	d.self = d
	d.fsm = fsm.NewFSM(
		registerStateNone,
		fsm.Events{
			{Name: registerEventSend, Src: []string{registerStateNone}, Dst: registerStateRegreqSent},
			{Name: registerEventRegack, Src: []string{registerStateRegreqSent}, Dst: registerStateNone},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				slog.Debug("register dialog state change", "call_num", d.callNum,
					"from", e.Src, "to", e.Dst)
			},
		},
	)
	return d
}

// Start sends the initial REGREQ for username and arms the retransmission
// timer. It is also re-entered by the refresh cycle, which is why the
// sequence counters reset here: each refresh restarts the exchange from
// sequence zero.
func (d *Register) Start(username string) error {
	if err := d.fsm.Event(context.Background(), registerEventSend); err != nil {
		return err
	}

	d.inSeqNum = 0
	d.outSeqNum = 0

	if d.username == "" {
		d.username = username
	}

	f := frame.New().
		SetDirection(frame.DirectionOut).
		SetShell(frame.ShellFull).
		SetType(frame.TypeIAX2).
		SetSubclass(frame.SubclassRegReq).
		SetSourceCallNum(d.callNum).
		SetInSeqNum(d.inSeqNum).
		SetOutSeqNum(d.outSeqNum).
		AddIEString(frame.IEUsername, d.username)
	d.outSeqNum++

	// Armed before the send in case the packet must be retransmitted.
	d.scheduleTimer(retransmitInterval)

	return d.peer.SendFrame(f, d.remoteAddr)
}

// ProcessIncomingFrame completes the handshake on REGACK: acknowledge,
// return to none, and arm the refresh timer for half the negotiated
// refresh interval so a refresh completes before the registrar expires the
// registration even if it needs retransmissions.
func (d *Register) ProcessIncomingFrame(f *frame.Frame, src *net.UDPAddr) Result {
	if d.gate(f) {
		return ResultSuccess
	}

	if d.fsm.Current() != registerStateRegreqSent ||
		f.Shell() != frame.ShellFull ||
		f.Type() != frame.TypeIAX2 ||
		f.Subclass() != frame.SubclassRegAck {
		return ResultInval
	}

	d.stopTimer()

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
	d.send(ack)

	if err := d.fsm.Event(context.Background(), registerEventRegack); err != nil {
		slog.Error("register dialog transition failed", "call_num", d.callNum, "error", err)
	}

	refresh := DefaultRefresh
	if secs, ok := f.IEUint16(frame.IERefresh); ok && secs > 0 {
		refresh = time.Duration(secs) * time.Second
	}
	d.scheduleTimer(refresh / 2)

	return ResultSuccess
}

// ProcessCommand: the registration dialog takes no application commands.
func (d *Register) ProcessCommand(cmd *command.Command) CommandResult {
	return CommandUnsupported
}

// TimerCallback either kicks off a refresh cycle (none) or retransmits the
// outstanding REGREQ (regreq_sent).
func (d *Register) TimerCallback() Result {
	switch d.fsm.Current() {
	case registerStateNone:
		if err := d.Start(d.username); err != nil {
			slog.Error("registration refresh failed", "call_num", d.callNum, "error", err)
		}
		return ResultSuccess
	case registerStateRegreqSent:
	default:
		slog.Warn("register dialog timer in unexpected state",
			"call_num", d.callNum, "state", d.fsm.Current())
		return ResultSuccess
	}

	f := frame.New().
		SetDirection(frame.DirectionOut).
		SetShell(frame.ShellFull).
		SetType(frame.TypeIAX2).
		SetSubclass(frame.SubclassRegReq).
		SetSourceCallNum(d.callNum).
		SetInSeqNum(d.inSeqNum).
		SetOutSeqNum(d.outSeqNum-1).
		SetRetransmission(true).
		AddIEString(frame.IEUsername, d.username)
	d.send(f)

	d.peer.QueueEvent(event.New(event.TypeRegistrationRetransmitted, d.callNum, nil))

	d.scheduleTimer(retransmitInterval)

	return ResultSuccess
}
