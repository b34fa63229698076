package dialog

import (
	"log/slog"
	"net"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

type registrarState int

const (
	registrarStateNone registrarState = iota
	registrarStateRegreqRcvd
)

// Registrar is the inbound registration dialog a server creates for each
// REGREQ. It lives for one handshake: REGREQ in, REGACK out, ACK in, then
// the registration is recorded and the dialog is destroyed.
type Registrar struct {
	base
	state    registrarState
	username string
	// regackTimestamp echoes the REGREQ's timestamp on the REGACK and
	// its retransmissions.
	regackTimestamp uint32
	server          Server
}

// NewRegistrar creates an inbound registration dialog.
func NewRegistrar(s Server, callNum uint16) *Registrar {
	d := &Registrar{
		base: base{
			callNum: callNum,
			peer:    s,
		},
		server: s,
	}
	d.self = d
	return d
}

func (d *Registrar) ProcessIncomingFrame(f *frame.Frame, src *net.UDPAddr) Result {
	if d.gate(f) {
		return ResultSuccess
	}

	switch d.state {
	case registrarStateNone:
		if f.Shell() != frame.ShellFull ||
			f.Type() != frame.TypeIAX2 ||
			f.Subclass() != frame.SubclassRegReq {
			return ResultInval
		}

		username, ok := f.IEString(frame.IEUsername)
		if !ok {
			return ResultInval
		}
		d.username = username
		d.destCallNum = f.SourceCallNum()
		d.remoteAddr = src
		d.regackTimestamp = f.Timestamp()

		d.sendRegAck(false)
		d.outSeqNum++

		d.scheduleTimer(retransmitInterval)

		d.state = registrarStateRegreqRcvd
		return ResultSuccess

	case registrarStateRegreqRcvd:
		if f.Shell() != frame.ShellFull ||
			f.Type() != frame.TypeIAX2 ||
			f.Subclass() != frame.SubclassAck {
			return ResultInval
		}

		d.server.RegisterPeer(d.username, src)
		return ResultDestroy
	}

	return ResultInval
}

// ProcessCommand: the registrar dialog takes no application commands.
func (d *Registrar) ProcessCommand(cmd *command.Command) CommandResult {
	return CommandUnsupported
}

// TimerCallback retransmits the REGACK while the closing ACK is
// outstanding. The out-seq is held at its previous value.
func (d *Registrar) TimerCallback() Result {
	if d.state != registrarStateRegreqRcvd {
		slog.Warn("registrar dialog timer in unexpected state",
			"call_num", d.callNum, "state", d.state)
		return ResultSuccess
	}

	d.sendRegAck(true)
	d.scheduleTimer(retransmitInterval)

	return ResultSuccess
}

func (d *Registrar) sendRegAck(retransmission bool) {
	f := frame.New().
		SetDirection(frame.DirectionOut).
		SetShell(frame.ShellFull).
		SetType(frame.TypeIAX2).
		SetSubclass(frame.SubclassRegAck).
		SetSourceCallNum(d.callNum).
		SetDestCallNum(d.destCallNum).
		SetInSeqNum(d.inSeqNum).
		SetTimestamp(d.regackTimestamp).
		AddIEUint16(frame.IERefresh, uint16(DefaultRefresh.Seconds()))
	if retransmission {
		f.SetOutSeqNum(d.outSeqNum - 1).SetRetransmission(true)
	} else {
		f.SetOutSeqNum(d.outSeqNum)
	}
	d.send(f)
}
