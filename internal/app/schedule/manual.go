package schedule

import (
	"sync"
	"time"
)

// Manual is a scheduler driven by explicit Advance calls. Callbacks run on the
// goroutine calling Advance. It is used to exercise timing logic
// deterministically.
type Manual struct {
	mu        sync.Mutex
	now       time.Duration
	timers    []*manualTimer
	scheduled []time.Duration
}

// NewManual creates a manual scheduler at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

// AfterFunc registers a timer that fires once Advance passes its deadline.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{
		owner:    m,
		fn:       f,
		deadline: m.now + d,
		status:   StatusRunning,
	}
	m.timers = append(m.timers, t)
	m.scheduled = append(m.scheduled, d)
	return t
}

// Advance moves virtual time forward by d, firing due timers in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var next *manualTimer
		for _, t := range m.timers {
			if t.status != StatusRunning || t.deadline > target {
				continue
			}
			if next == nil || t.deadline < next.deadline {
				next = t
			}
		}
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.deadline
		next.status = StatusStopped
		m.mu.Unlock()

		next.fn()
	}
}

// Now returns the elapsed virtual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Scheduled returns every delay passed to AfterFunc, in call order.
func (m *Manual) Scheduled() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]time.Duration, len(m.scheduled))
	copy(out, m.scheduled)
	return out
}

// Pending returns the number of running or paused timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if t.status != StatusStopped {
			n++
		}
	}
	return n
}

type manualTimer struct {
	owner     *Manual
	fn        func()
	deadline  time.Duration
	remaining time.Duration
	status    Status
}

func (t *manualTimer) Pause() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	if t.status != StatusRunning {
		return
	}
	t.remaining = t.deadline - t.owner.now
	t.status = StatusPaused
}

func (t *manualTimer) Resume() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	if t.status != StatusPaused {
		return
	}
	t.deadline = t.owner.now + t.remaining
	t.status = StatusRunning
}

func (t *manualTimer) Cancel() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.status = StatusStopped
}

func (t *manualTimer) Status() Status {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.status
}

func (t *manualTimer) Remaining() time.Duration {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	switch t.status {
	case StatusRunning:
		return t.deadline - t.owner.now
	case StatusPaused:
		return t.remaining
	default:
		return 0
	}
}
