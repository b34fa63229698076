package dialog

import (
	"net"
	"testing"
	"time"

	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

// sentFrame snapshots what a dialog handed to SendFrame, with the
// retransmission flag as it was at send time (the peer marks the frame
// retransmitted afterwards, mutating it).
type sentFrame struct {
	frame   *frame.Frame
	addr    *net.UDPAddr
	retrans bool
}

// fakePeer records everything a dialog asks of its peer.
type fakePeer struct {
	sent   []sentFrame
	events []*event.Event
	timers map[uint32]time.Time

	nextTimerID  uint32
	capabilities uint32
	preferred    uint32
	chooseResult uint32
	reference    time.Time

	registered     []string
	registeredAddr *net.UDPAddr
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		timers:       make(map[uint32]time.Time),
		nextTimerID:  1,
		capabilities: frame.FormatSlinear,
		preferred:    frame.FormatSlinear,
		reference:    time.Now(),
	}
}

func (p *fakePeer) StartTimer(d Dialog, fireAt time.Time) uint32 {
	id := p.nextTimerID
	p.nextTimerID++
	p.timers[id] = fireAt
	return id
}

func (p *fakePeer) StopTimer(id uint32) { delete(p.timers, id) }

func (p *fakePeer) QueueEvent(ev *event.Event) { p.events = append(p.events, ev) }

func (p *fakePeer) SendFrame(f *frame.Frame, addr *net.UDPAddr) error {
	p.sent = append(p.sent, sentFrame{frame: f, addr: addr, retrans: f.Retransmission()})
	f.SetRetransmission(true)
	return nil
}

func (p *fakePeer) Capabilities() uint32    { return p.capabilities }
func (p *fakePeer) PreferredFormat() uint32 { return p.preferred }
func (p *fakePeer) ChooseFormats(peerCapabilities uint32) uint32 {
	return p.chooseResult
}
func (p *fakePeer) ReferenceTime() time.Time { return p.reference }

func (p *fakePeer) RegisterPeer(username string, addr *net.UDPAddr) {
	p.registered = append(p.registered, username)
	p.registeredAddr = addr
}

// lastSent fails the test when nothing was sent.
func (p *fakePeer) lastSent(t *testing.T) sentFrame {
	t.Helper()
	if len(p.sent) == 0 {
		t.Fatal("no frame was sent")
	}
	return p.sent[len(p.sent)-1]
}

func (p *fakePeer) lastEvent(t *testing.T) *event.Event {
	t.Helper()
	if len(p.events) == 0 {
		t.Fatal("no event was queued")
	}
	return p.events[len(p.events)-1]
}

var testAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 14569}

// inboundFull builds an incoming FULL IAX2 frame with the given sequence
// numbers.
func inboundFull(sc frame.Subclass, srcCall uint16, oseq, iseq uint8) *frame.Frame {
	return frame.New().
		SetDirection(frame.DirectionIn).
		SetShell(frame.ShellFull).
		SetType(frame.TypeIAX2).
		SetSubclass(sc).
		SetSourceCallNum(srcCall).
		SetOutSeqNum(oseq).
		SetInSeqNum(iseq)
}

func TestSequenceGateDropsDuplicates(t *testing.T) {
	p := newFakePeer()
	d := NewLag(p, 1, testAddr)

	// First LAGRQ advances the in-seq and produces a LAGRP.
	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassLagRq, 7, 0, 0), testAddr); res != ResultSuccess {
		t.Fatalf("first frame: result = %v, want success", res)
	}
	if d.inSeqNum != 1 {
		t.Fatalf("inSeqNum = %d, want 1", d.inSeqNum)
	}
	sends := len(p.sent)

	// The identical frame again is a duplicate: swallowed, no state
	// change, no reply.
	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassLagRq, 7, 0, 0), testAddr); res != ResultSuccess {
		t.Fatalf("duplicate: result = %v, want success", res)
	}
	if d.inSeqNum != 1 {
		t.Errorf("duplicate advanced inSeqNum to %d", d.inSeqNum)
	}
	if len(p.sent) != sends {
		t.Error("duplicate produced a reply")
	}
}

func TestSequenceGateDropsOutOfOrder(t *testing.T) {
	p := newFakePeer()
	d := NewLag(p, 1, testAddr)

	if res := d.ProcessIncomingFrame(inboundFull(frame.SubclassLagRq, 7, 3, 0), testAddr); res != ResultSuccess {
		t.Fatalf("result = %v, want success", res)
	}
	if d.inSeqNum != 0 {
		t.Errorf("out-of-order frame advanced inSeqNum to %d", d.inSeqNum)
	}
	if len(p.sent) != 0 {
		t.Error("out-of-order frame produced a reply")
	}
}

func TestSequenceGateBypassesMediaFrames(t *testing.T) {
	p := newFakePeer()
	p.chooseResult = frame.FormatSlinear
	d := NewCall(p, 1, testAddr)

	// Bring the call up: NEW in, ACCEPT out, ACK in.
	d.ProcessIncomingFrame(inboundFull(frame.SubclassNew, 7, 0, 0), testAddr)
	d.ProcessIncomingFrame(inboundFull(frame.SubclassAck, 7, 1, 1), testAddr)

	mini := frame.New().
		SetDirection(frame.DirectionIn).
		SetShell(frame.ShellMini).
		SetSourceCallNum(7).
		SetOutSeqNum(200). // nonsense on a mini frame; must be ignored
		SetTimestamp(50).
		SetRawData([]byte{1, 2})

	before := d.inSeqNum
	if res := d.ProcessIncomingFrame(mini, testAddr); res != ResultSuccess {
		t.Fatalf("result = %v, want success", res)
	}
	if d.inSeqNum != before {
		t.Error("mini frame went through the sequence gate")
	}
}
