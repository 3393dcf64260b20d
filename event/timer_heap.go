package event

import (
	"container/heap"
	"time"
)

// timer is one entry in the reactor's timer queue.
type timer struct {
	id        int
	nextFire  time.Time
	interval  time.Duration
	remaining int // -1 means the timer fires indefinitely
	handler   TimerHandler
	seq       int64 // insertion order, deterministic tie-breaker
}

// timerHeap implements a priority queue over timers with deterministic
// ordering: fire time first, then insertion order.
type timerHeap struct {
	timers []*timer
}

func newTimerHeap() *timerHeap {
	h := &timerHeap{timers: make([]*timer, 0)}
	heap.Init(h)
	return h
}

// Len implements heap.Interface
func (h *timerHeap) Len() int {
	return len(h.timers)
}

// Less implements heap.Interface
// Order by: fire time → insertion sequence
func (h *timerHeap) Less(i, j int) bool {
	ti, tj := h.timers[i], h.timers[j]
	if !ti.nextFire.Equal(tj.nextFire) {
		return ti.nextFire.Before(tj.nextFire)
	}
	return ti.seq < tj.seq
}

// Swap implements heap.Interface
func (h *timerHeap) Swap(i, j int) {
	h.timers[i], h.timers[j] = h.timers[j], h.timers[i]
}

// Push implements heap.Interface
func (h *timerHeap) Push(x any) {
	h.timers = append(h.timers, x.(*timer))
}

// Pop implements heap.Interface
func (h *timerHeap) Pop() any {
	old := h.timers
	n := len(old)
	item := old[n-1]
	h.timers = old[0 : n-1]
	return item
}

// add inserts a timer into the queue.
func (h *timerHeap) add(t *timer) {
	heap.Push(h, t)
}

// peek returns the timer that fires next without removing it.
func (h *timerHeap) peek() *timer {
	if h.Len() == 0 {
		return nil
	}
	return h.timers[0]
}

// removeFront removes the front timer.
func (h *timerHeap) removeFront() *timer {
	return heap.Pop(h).(*timer)
}

// removeID removes the timer with the given id and reports whether it was
// present.
func (h *timerHeap) removeID(id int) bool {
	for i, t := range h.timers {
		if t.id == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}

// find returns the timer with the given id, or nil.
func (h *timerHeap) find(id int) *timer {
	for _, t := range h.timers {
		if t.id == id {
			return t
		}
	}
	return nil
}

// fix restores the heap invariant after a timer's fire time changed.
func (h *timerHeap) fix(t *timer) {
	for i, u := range h.timers {
		if u == t {
			heap.Fix(h, i)
			return
		}
	}
}

// refix rebuilds the whole heap.
func (h *timerHeap) refix() {
	heap.Init(h)
}
