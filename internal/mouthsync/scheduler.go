package mouthsync

import (
	"sync"
	"time"
)

// Scheduler schedules a callback for the next animation frame. It stands in
// for the browser's requestAnimationFrame: every call schedules exactly one
// future invocation, and the returned handle can cancel it before it fires.
type Scheduler interface {
	Schedule(fn func(now time.Time)) Frame
}

// Frame is a handle to one pending frame callback.
type Frame interface {
	// Cancel prevents the callback from firing. Safe to call more than once
	// and after the callback has already run.
	Cancel()
}

// TickScheduler fires frame callbacks on wall-clock timers at a fixed rate.
type TickScheduler struct {
	interval time.Duration
}

// NewTickScheduler creates a scheduler ticking at the given frame rate.
func NewTickScheduler(fps int) *TickScheduler {
	if fps <= 0 {
		fps = 60
	}
	return &TickScheduler{interval: time.Second / time.Duration(fps)}
}

// Schedule arms a one-shot timer for the next frame.
func (s *TickScheduler) Schedule(fn func(now time.Time)) Frame {
	f := &timerFrame{}
	f.timer = time.AfterFunc(s.interval, func() {
		f.mu.Lock()
		cancelled := f.cancelled
		f.mu.Unlock()
		if cancelled {
			return
		}
		fn(time.Now())
	})
	return f
}

type timerFrame struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
}

func (f *timerFrame) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
	f.timer.Stop()
}
