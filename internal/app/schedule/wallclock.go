package schedule

import (
	"context"
	"sync"
	"time"
)

// DefaultResolution is the polling interval of wall-clock timers.
const DefaultResolution = 20 * time.Millisecond

// WallClock schedules timers against the wall clock. Deadlines are checked by
// polling so suspend/resume of the host or monotonic drift cannot stretch a
// wait.
type WallClock struct {
	resolution time.Duration
}

// NewWallClock creates a wall-clock scheduler. A non-positive resolution
// selects DefaultResolution.
func NewWallClock(resolution time.Duration) *WallClock {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &WallClock{resolution: resolution}
}

// AfterFunc starts a timer that calls f on its own goroutine.
func (w *WallClock) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	t := &wallTimer{
		fn:         f,
		remaining:  d,
		resolution: w.resolution,
	}
	t.mu.Lock()
	t.startLocked()
	t.mu.Unlock()
	return t
}

type wallTimer struct {
	mu         sync.Mutex
	fn         func()
	status     Status
	remaining  time.Duration
	deadline   time.Time
	cancel     context.CancelFunc
	resolution time.Duration
}

// startLocked begins counting down the remaining duration.
// Must be called with t.mu held.
func (t *wallTimer) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.status = StatusRunning
	t.deadline = toWallTime(time.Now()).Add(t.remaining)
	go t.run(ctx, t.deadline)
}

func (t *wallTimer) run(ctx context.Context, deadline time.Time) {
	ticker := time.NewTicker(t.resolution)
	defer ticker.Stop()

	for {
		if !toWallTime(time.Now()).Before(deadline) {
			t.fire(ctx)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *wallTimer) fire(ctx context.Context) {
	t.mu.Lock()
	// Paused or cancelled between the deadline check and now.
	if ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	t.cancel()
	t.status = StatusStopped
	t.remaining = 0
	t.mu.Unlock()

	t.fn()
}

func (t *wallTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusRunning {
		return
	}
	t.cancel()
	t.remaining = t.deadline.Sub(toWallTime(time.Now()))
	if t.remaining < 0 {
		t.remaining = 0
	}
	t.status = StatusPaused
}

func (t *wallTimer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPaused {
		return
	}
	t.startLocked()
}

func (t *wallTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusStopped {
		return
	}
	t.cancel()
	t.status = StatusStopped
}

func (t *wallTimer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *wallTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case StatusRunning:
		if r := t.deadline.Sub(toWallTime(time.Now())); r > 0 {
			return r
		}
		return 0
	case StatusPaused:
		return t.remaining
	default:
		return 0
	}
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
