package gbn

import (
	"sync"
	"time"
)

// Retransmit is the sender's single one-shot retransmission timer. Arm and
// Cancel are meant to be called with the sender's mutex already held, so
// replacement (cancel-then-arm) is atomic from the sender's point of view,
// per spec §4.7.
type Retransmit struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm (re)schedules callback to run after delay, cancelling any previously
// scheduled callback first.
func (r *Retransmit) Arm(delay time.Duration, callback func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.timer = time.AfterFunc(delay, callback)
}

// Cancel stops the pending callback, if any. Safe to call when unarmed.
func (r *Retransmit) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Retransmit) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
