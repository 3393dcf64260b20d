package event

import "time"

// Timeout stops a reactor run with an error when nothing resets it for a
// fixed duration. It is used by slaves to detect a dead master: every
// incoming control message resets it, and if it ever fires, the error it
// produces propagates out of Run.
type Timeout struct {
	reactor *Reactor
	timerID int
	fail    func(after time.Duration) error
}

// NewTimeout arms a timeout on the given reactor. fail builds the error
// delivered when the timeout fires. A negative duration creates a
// disarmed timeout.
func NewTimeout(reactor *Reactor, d time.Duration, fail func(after time.Duration) error) (*Timeout, error) {
	t := &Timeout{
		reactor: reactor,
		timerID: InvalidTimerID,
		fail:    fail,
	}
	if err := t.Set(d); err != nil {
		return nil, err
	}
	return t, nil
}

// Reset restarts the current period, deferring the deadline.
func (t *Timeout) Reset() {
	if t.timerID != InvalidTimerID {
		_ = t.reactor.RestartTimerInterval(t.timerID)
	}
}

// Set rearms the timeout with a new duration. A negative duration
// disarms it.
func (t *Timeout) Set(d time.Duration) error {
	if t.timerID != InvalidTimerID {
		_ = t.reactor.RemoveTimer(t.timerID)
		t.timerID = InvalidTimerID
	}
	if d < 0 {
		return nil
	}
	id, err := t.reactor.AddTimer(d, 1, func(*Reactor, int) error {
		t.timerID = InvalidTimerID
		return t.fail(d)
	})
	if err != nil {
		return err
	}
	t.timerID = id
	return nil
}
