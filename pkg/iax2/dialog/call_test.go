package dialog

import (
	"bytes"
	"testing"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

func newFrameIn(shell frame.Shell, typ frame.Type, srcCall uint16, oseq uint8) *frame.Frame {
	return frame.New().
		SetDirection(frame.DirectionIn).
		SetShell(shell).
		SetType(typ).
		SetSourceCallNum(srcCall).
		SetOutSeqNum(oseq)
}

// answeredCall brings a callee-side dialog up: NEW in, ACCEPT out, ACK in.
func answeredCall(t *testing.T, p *fakePeer) *Call {
	t.Helper()
	d := NewCall(p, 1, testAddr)
	if res := d.ProcessIncomingFrame(
		inboundFull(frame.SubclassNew, 7, 0, 0).
			AddIEUint32(frame.IECapability, frame.FormatSlinear|frame.FormatULAW),
		testAddr); res != ResultSuccess {
		t.Fatalf("NEW: result = %v, want success", res)
	}
	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassAck, 7, 1, 1), testAddr); res != ResultSuccess {
		t.Fatalf("ACK: result = %v, want success", res)
	}
	return d
}

func TestCallAnswerAccept(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := NewCall(p, 1, testAddr)

	res := d.ProcessIncomingFrame(
		inboundFull(frame.SubclassNew, 7, 0, 0).
			AddIEUint32(frame.IECapability, frame.FormatSlinear|frame.FormatULAW),
		testAddr)
	if res != ResultSuccess {
		t.Fatalf("result = %v, want success", res)
	}

	accept := p.lastSent(t).frame
	if accept.Subclass() != frame.SubclassAccept {
		t.Fatalf("reply = %v, want ACCEPT", accept)
	}
	if format, ok := accept.IEUint32(frame.IEFormat); !ok || format != frame.FormatSlinear {
		t.Errorf("FORMAT IE = %#x, %v; want SLINEAR", format, ok)
	}
	if accept.DestCallNum() != 7 {
		t.Errorf("ACCEPT dest = %d, want 7", accept.DestCallNum())
	}
	if d.RemoteCallNum() != 7 {
		t.Errorf("RemoteCallNum() = %d, want 7", d.RemoteCallNum())
	}
	if d.fsm.Current() != callStateAcceptSent {
		t.Errorf("state = %q, want accept_sent", d.fsm.Current())
	}

	// The closing ACK raises CallEstablished with the remote IP.
	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassAck, 7, 1, 1), testAddr); res != ResultSuccess {
		t.Fatalf("ACK: result = %v, want success", res)
	}
	ev := p.lastEvent(t)
	if ev.Type() != event.TypeCallEstablished {
		t.Fatalf("event = %v, want CALL_ESTABLISHED", ev)
	}
	if ev.Str() != "127.0.0.1" {
		t.Errorf("event payload = %q, want the remote dotted quad", ev.Str())
	}
	if d.fsm.Current() != callStateUp {
		t.Errorf("state = %q, want up", d.fsm.Current())
	}
}

func TestCallAnswerRejectWhenNoCommonCodec(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = 0
	d := NewCall(p, 1, testAddr)

	res := d.ProcessIncomingFrame(
		inboundFull(frame.SubclassNew, 7, 0, 0).
			AddIEUint32(frame.IECapability, frame.FormatG729A),
		testAddr)
	if res != ResultSuccess {
		t.Fatalf("result = %v, want success", res)
	}

	reject := p.lastSent(t).frame
	if reject.Subclass() != frame.SubclassReject {
		t.Fatalf("reply = %v, want REJECT", reject)
	}
	if format, ok := reject.IEUint32(frame.IEFormat); !ok || format != 0 {
		t.Errorf("FORMAT IE = %#x, %v; want 0", format, ok)
	}

	// ACK tears the dialog down; no CallEstablished was emitted.
	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassAck, 7, 1, 1), testAddr); res != ResultDestroy {
		t.Fatalf("ACK: result = %v, want destroy", res)
	}
	for _, ev := range p.events {
		if ev.Type() == event.TypeCallEstablished {
			t.Error("CallEstablished emitted for a rejected call")
		}
	}
}

func TestCallOriginateEstablish(t *testing.T) {
	p := newFakePeer()
	p.capabilities = frame.FormatSlinear | frame.FormatULAW
	p.preferred = frame.FormatULAW
	d := NewCall(p, 2, testAddr)

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	nf := p.lastSent(t).frame
	if nf.Subclass() != frame.SubclassNew {
		t.Fatalf("sent %v, want NEW", nf)
	}
	if v, ok := nf.IEUint16(frame.IEVersion); !ok || v != 2 {
		t.Errorf("VERSION IE = %d, %v; want 2", v, ok)
	}
	if caps, ok := nf.IEUint32(frame.IECapability); !ok || caps != p.capabilities {
		t.Errorf("CAPABILITY IE = %#x, %v", caps, ok)
	}
	if format, ok := nf.IEUint32(frame.IEFormat); !ok || format != p.preferred {
		t.Errorf("FORMAT IE = %#x, %v", format, ok)
	}
	if len(p.timers) != 1 {
		t.Errorf("timers armed = %d, want 1", len(p.timers))
	}

	res := d.ProcessIncomingFrame(
		inboundFull(frame.SubclassAccept, 9, 0, 1).
			AddIEUint32(frame.IEFormat, frame.FormatULAW),
		testAddr)
	if res != ResultSuccess {
		t.Fatalf("ACCEPT: result = %v, want success", res)
	}
	if p.lastSent(t).frame.Subclass() != frame.SubclassAck {
		t.Fatalf("reply = %v, want ACK", p.lastSent(t).frame)
	}
	if d.RemoteCallNum() != 9 {
		t.Errorf("RemoteCallNum() = %d, want 9", d.RemoteCallNum())
	}
	if d.fsm.Current() != callStateUp {
		t.Errorf("state = %q, want up", d.fsm.Current())
	}
	if len(p.timers) != 0 {
		t.Error("retransmit timer survived the ACCEPT")
	}
}

func TestCallOriginateRejected(t *testing.T) {
	p := newFakePeer()
	d := NewCall(p, 2, testAddr)
	d.Start()

	res := d.ProcessIncomingFrame(
		inboundFull(frame.SubclassReject, 9, 0, 1).
			AddIEUint32(frame.IEFormat, 0),
		testAddr)
	if res != ResultDestroy {
		t.Fatalf("REJECT: result = %v, want destroy", res)
	}
	if p.lastSent(t).frame.Subclass() != frame.SubclassAck {
		t.Errorf("reply = %v, want ACK", p.lastSent(t).frame)
	}
}

func TestCallTimerRetransmitsNew(t *testing.T) {
	p := newFakePeer()
	d := NewCall(p, 2, testAddr)
	d.Start()

	if res := d.TimerCallback(); res != ResultSuccess {
		t.Fatalf("result = %v, want success", res)
	}

	sent := p.lastSent(t)
	if sent.frame.Subclass() != frame.SubclassNew || !sent.retrans {
		t.Errorf("retransmission = %v (retrans %v), want flagged NEW", sent.frame, sent.retrans)
	}
	if sent.frame.OutSeqNum() != 0 {
		t.Errorf("retransmission out-seq = %d, want the original 0", sent.frame.OutSeqNum())
	}
}

func TestCallTextEventAndAck(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := answeredCall(t, p)

	text := newFrameIn(frame.ShellFull, frame.TypeText, 7, 2).
		SetRawData([]byte("hello"))
	if res := d.ProcessIncomingFrame(text, testAddr); res != ResultSuccess {
		t.Fatalf("result = %v, want success", res)
	}

	ev := p.lastEvent(t)
	if ev.Type() != event.TypeText || ev.Str() != "hello" {
		t.Errorf("event = %v, want TEXT \"hello\"", ev)
	}
	if p.lastSent(t).frame.Subclass() != frame.SubclassAck {
		t.Errorf("reply = %v, want ACK", p.lastSent(t).frame)
	}
}

func TestCallTextCommandQueuesUntilAcked(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := answeredCall(t, p)

	if res := d.ProcessCommand(command.NewString(command.TypeText, 1, "ping")); res != CommandSuccess {
		t.Fatalf("result = %v, want success", res)
	}

	sent := p.lastSent(t)
	if sent.frame.Type() != frame.TypeText || string(sent.frame.RawData()) != "ping" {
		t.Fatalf("sent %v, want TEXT \"ping\"", sent.frame)
	}
	if sent.retrans {
		t.Error("first transmission carried the retransmission flag")
	}
	if len(d.frameQueue) != 1 {
		t.Fatalf("frameQueue len = %d, want 1", len(d.frameQueue))
	}
	textOseq := sent.frame.OutSeqNum()

	// Timer fires before any ACK: the queued text is re-sent, flagged.
	sends := len(p.sent)
	if res := d.TimerCallback(); res != ResultSuccess {
		t.Fatalf("timer: result = %v, want success", res)
	}
	if len(p.sent) != sends+1 || !p.lastSent(t).retrans {
		t.Error("timer did not retransmit the queued text frame")
	}

	// An ACK whose in-seq has not passed the text leaves it queued.
	stale := inboundFull(frame.SubclassAck, 7, 2, textOseq)
	if res := d.ProcessIncomingFrame(stale, testAddr); res != ResultSuccess {
		t.Fatalf("stale ACK: result = %v, want success", res)
	}
	if len(d.frameQueue) != 1 {
		t.Errorf("stale ACK dequeued the text frame")
	}

	// An ACK past the text's out-seq sweeps it.
	fresh := inboundFull(frame.SubclassAck, 7, 3, textOseq+1)
	if res := d.ProcessIncomingFrame(fresh, testAddr); res != ResultSuccess {
		t.Fatalf("fresh ACK: result = %v, want success", res)
	}
	if len(d.frameQueue) != 0 {
		t.Errorf("frameQueue len = %d after covering ACK, want 0", len(d.frameQueue))
	}
}

func TestCallHangupCommandAndAck(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := answeredCall(t, p)

	if res := d.ProcessCommand(command.New(command.TypeHangup, 1)); res != CommandSuccess {
		t.Fatalf("result = %v, want success", res)
	}
	if p.lastSent(t).frame.Subclass() != frame.SubclassHangup {
		t.Fatalf("sent %v, want HANGUP", p.lastSent(t).frame)
	}
	if d.fsm.Current() != callStateHangupSent {
		t.Errorf("state = %q, want hangup_sent", d.fsm.Current())
	}

	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassAck, 7, 2, 2), testAddr); res != ResultDestroy {
		t.Errorf("ACK: result = %v, want destroy", res)
	}
}

func TestCallRemoteHangup(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := answeredCall(t, p)

	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassHangup, 7, 2, 1), testAddr); res != ResultDestroy {
		t.Fatalf("result = %v, want destroy", res)
	}
	if p.lastSent(t).frame.Subclass() != frame.SubclassAck {
		t.Errorf("reply = %v, want ACK", p.lastSent(t).frame)
	}
	if ev := p.lastEvent(t); ev.Type() != event.TypeCallHangup {
		t.Errorf("event = %v, want CALL_HANGUP", ev)
	}
}

func TestCallIncomingMetaVideo(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := answeredCall(t, p)

	video := frame.New().
		SetDirection(frame.DirectionIn).
		SetShell(frame.ShellMeta).
		SetMetaType(frame.MetaVideo).
		SetSourceCallNum(7).
		SetTimestamp(345).
		SetRawData([]byte{0xAA, 0xBB})
	if res := d.ProcessIncomingFrame(video, testAddr); res != ResultSuccess {
		t.Fatalf("result = %v, want success", res)
	}

	ev := p.lastEvent(t)
	if ev.Type() != event.TypeVideo {
		t.Fatalf("event = %v, want VIDEO", ev)
	}
	media := ev.Media()
	if media == nil || !bytes.Equal(media.Data, []byte{0xAA, 0xBB}) || media.Timestamp != 345 {
		t.Errorf("media payload = %+v", media)
	}
}

func TestCallVideoCommandSendsMetaFrame(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := answeredCall(t, p)

	payload := []byte{0, 1, 2, 3}
	if res := d.ProcessCommand(command.NewRaw(command.TypeVideo, 1, payload)); res != CommandSuccess {
		t.Fatalf("result = %v, want success", res)
	}

	f := p.lastSent(t).frame
	if f.Shell() != frame.ShellMeta || f.MetaType() != frame.MetaVideo {
		t.Fatalf("sent %v, want META VIDEO", f)
	}
	if f.SourceCallNum() != 1 {
		t.Errorf("source call num = %d, want our local 1", f.SourceCallNum())
	}
	if !bytes.Equal(f.RawData(), payload) {
		t.Errorf("payload = %x", f.RawData())
	}
}

func TestCallAudioCommandSendsMiniFrame(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := answeredCall(t, p)

	if res := d.ProcessCommand(command.NewRaw(command.TypeAudio, 1, []byte{5, 6})); res != CommandSuccess {
		t.Fatalf("result = %v, want success", res)
	}

	f := p.lastSent(t).frame
	if f.Shell() != frame.ShellMini {
		t.Fatalf("sent %v, want MINI", f)
	}
}

func TestCallIncomingMiniEmitsAudio(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := answeredCall(t, p)

	mini := frame.New().
		SetDirection(frame.DirectionIn).
		SetShell(frame.ShellMini).
		SetSourceCallNum(7).
		SetTimestamp(60).
		SetRawData([]byte{9})
	if res := d.ProcessIncomingFrame(mini, testAddr); res != ResultSuccess {
		t.Fatalf("result = %v, want success", res)
	}
	if ev := p.lastEvent(t); ev.Type() != event.TypeAudio {
		t.Errorf("event = %v, want AUDIO", ev)
	}
}

func TestCallMediaCommandsRequireUp(t *testing.T) {
	p := newFakePeer()
	d := NewCall(p, 1, testAddr)

	if res := d.ProcessCommand(command.NewString(command.TypeText, 1, "x")); res != CommandUnsupported {
		t.Errorf("text while down: result = %v, want unsupported", res)
	}
	if res := d.ProcessCommand(command.NewRaw(command.TypeVideo, 1, []byte{1})); res != CommandUnsupported {
		t.Errorf("video while down: result = %v, want unsupported", res)
	}
}

func TestCallRejectsUnexpectedFrame(t *testing.T) {
	p := newFakePeer()
	d := NewCall(p, 1, testAddr)

	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassLagRq, 7, 0, 0), testAddr); res != ResultInval {
		t.Errorf("result = %v, want inval", res)
	}
}
