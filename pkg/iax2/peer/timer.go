package peer

import (
	"container/heap"
	"time"

	"github.com/arzzra/iax2/pkg/iax2/dialog"
)

// timerEntry is one scheduled dialog timer. Entries are ordered by fire
// time, earliest first.
type timerEntry struct {
	id     uint32
	dialog dialog.Dialog
	fireAt time.Time
}

type timerHeap []timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// timerQueue is the peer's timer priority queue. It is touched only from
// the protocol goroutine and needs no locking.
type timerQueue struct {
	entries timerHeap
	nextID  uint32
}

func newTimerQueue() *timerQueue {
	return &timerQueue{nextID: 1}
}

// start schedules a timer and returns its id, never zero.
func (q *timerQueue) start(d dialog.Dialog, fireAt time.Time) uint32 {
	id := q.nextID
	q.nextID++
	if q.nextID == 0 {
		q.nextID = 1
	}
	heap.Push(&q.entries, timerEntry{id: id, dialog: d, fireAt: fireAt})
	return id
}

// stop cancels the entry with the given id. The scan is O(n), acceptable
// at the dialog counts a single peer carries.
func (q *timerQueue) stop(id uint32) bool {
	for i, e := range q.entries {
		if e.id == id {
			heap.Remove(&q.entries, i)
			return true
		}
	}
	return false
}

// untilNext reports how long until the earliest timer is due. ok is false
// when the queue is empty; an overdue timer reports zero.
func (q *timerQueue) untilNext(now time.Time) (time.Duration, bool) {
	if len(q.entries) == 0 {
		return 0, false
	}
	d := q.entries[0].fireAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// popDue removes and returns the earliest entry if it is due at now.
func (q *timerQueue) popDue(now time.Time) (timerEntry, bool) {
	if len(q.entries) == 0 || q.entries[0].fireAt.After(now) {
		return timerEntry{}, false
	}
	return heap.Pop(&q.entries).(timerEntry), true
}

func (q *timerQueue) len() int { return len(q.entries) }
