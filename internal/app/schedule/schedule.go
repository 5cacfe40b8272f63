// Package schedule provides cancellable, pausable one-shot timers.
package schedule

import "time"

// Status represents the lifecycle of a one-shot timer.
type Status int

const (
	StatusStopped Status = iota // Fired, cancelled, or never started
	StatusRunning               // Counting down
	StatusPaused                // Countdown suspended
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Timer is a one-shot timer handle.
// Every method is safe to call in any state; calls that do not apply are no-ops.
type Timer interface {
	Pause()
	Resume()
	Cancel()
	Status() Status
	Remaining() time.Duration
}

// Scheduler creates one-shot timers that call f once after d elapses.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}
