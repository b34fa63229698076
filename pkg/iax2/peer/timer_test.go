package peer

import (
	"net"
	"testing"
	"time"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/dialog"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

// stubDialog is the minimal dialog a timer entry can point at.
type stubDialog struct {
	callNum uint16
	fired   int
}

func (d *stubDialog) CallNum() uint16          { return d.callNum }
func (d *stubDialog) RemoteCallNum() uint16    { return 0 }
func (d *stubDialog) RemoteAddr() *net.UDPAddr { return nil }
func (d *stubDialog) ProcessIncomingFrame(f *frame.Frame, src *net.UDPAddr) dialog.Result {
	return dialog.ResultInval
}
func (d *stubDialog) ProcessCommand(cmd *command.Command) dialog.CommandResult {
	return dialog.CommandUnsupported
}
func (d *stubDialog) TimerCallback() dialog.Result {
	d.fired++
	return dialog.ResultSuccess
}
func (d *stubDialog) Stop()       {}
func (d *stubDialog) ClearTimer() {}

func TestTimerQueueOrdering(t *testing.T) {
	q := newTimerQueue()
	now := time.Now()
	d := &stubDialog{callNum: 1}

	idLate := q.start(d, now.Add(3*time.Second))
	idEarly := q.start(d, now.Add(1*time.Second))
	idMid := q.start(d, now.Add(2*time.Second))

	if idLate == 0 || idEarly == 0 || idMid == 0 {
		t.Fatal("timer ids must be non-zero")
	}

	// Nothing due yet.
	if _, ok := q.popDue(now); ok {
		t.Fatal("popDue returned an entry before its fire time")
	}

	// They come out earliest first.
	want := []uint32{idEarly, idMid, idLate}
	for i, id := range want {
		e, ok := q.popDue(now.Add(4 * time.Second))
		if !ok {
			t.Fatalf("entry %d missing", i)
		}
		if e.id != id {
			t.Errorf("entry %d id = %d, want %d", i, e.id, id)
		}
	}
}

func TestTimerQueueUntilNext(t *testing.T) {
	q := newTimerQueue()
	now := time.Now()

	if _, ok := q.untilNext(now); ok {
		t.Error("untilNext reported a wait on an empty queue")
	}

	q.start(&stubDialog{}, now.Add(500*time.Millisecond))
	wait, ok := q.untilNext(now)
	if !ok || wait != 500*time.Millisecond {
		t.Errorf("untilNext = %v, %v; want 500ms", wait, ok)
	}

	// Overdue entries report zero, not a negative wait.
	wait, ok = q.untilNext(now.Add(time.Second))
	if !ok || wait != 0 {
		t.Errorf("untilNext past due = %v, %v; want 0", wait, ok)
	}
}

func TestTimerQueueStopById(t *testing.T) {
	q := newTimerQueue()
	now := time.Now()
	d := &stubDialog{}

	idA := q.start(d, now.Add(1*time.Second))
	idB := q.start(d, now.Add(2*time.Second))

	if !q.stop(idA) {
		t.Fatal("stop(idA) = false")
	}
	if q.stop(idA) {
		t.Error("stop of a cancelled id succeeded twice")
	}
	if q.len() != 1 {
		t.Fatalf("len = %d after cancel, want 1", q.len())
	}

	e, ok := q.popDue(now.Add(3 * time.Second))
	if !ok || e.id != idB {
		t.Errorf("remaining entry = %v, %v; want idB", e, ok)
	}
}

func TestNextCallNumSkipsZeroOnWrap(t *testing.T) {
	p := newPeer(0)
	defer p.teardown()

	p.nextCallNum = 65535
	if num := p.NextCallNum(); num != 65535 {
		t.Errorf("NextCallNum() = %d, want 65535", num)
	}
	if num := p.NextCallNum(); num != 1 {
		t.Errorf("NextCallNum() after wrap = %d, want 1 (zero skipped)", num)
	}
}

func TestNextCallNumUnique(t *testing.T) {
	p := newPeer(0)
	defer p.teardown()

	seen := make(map[uint16]bool)
	for i := 0; i < 1000; i++ {
		num := p.NextCallNum()
		if num == 0 {
			t.Fatal("NextCallNum() returned zero")
		}
		if seen[num] {
			t.Fatalf("NextCallNum() repeated %d", num)
		}
		seen[num] = true
	}
}
