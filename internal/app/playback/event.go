package playback

import (
	"github.com/osa030/cuebox/internal/domain/cue"
)

// EventType represents a playback event type.
type EventType int

const (
	EventStatus       EventType = iota // Human-readable status message
	EventStateChanged                  // Aggregate state recomputed
	EventCueComplete                   // Cue finished and wants the next cue (auto-follow)
	EventTrackFailed                   // Backend failed while a track was playing
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStatus:
		return "status"
	case EventStateChanged:
		return "state_changed"
	case EventCueComplete:
		return "cue_complete"
	case EventTrackFailed:
		return "track_failed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	State   State    // Aggregate state at emission time
	Message string   // Set for EventStatus
	Cue     *cue.Cue // Cue concerned, nil for global events
	TrackID string   // Track concerned, empty for cue-level events
	Err     error    // Set for EventTrackFailed
}

const defaultEventBufferSize = 64

// Subscription delivers events to one consumer.
type Subscription struct {
	ID     string
	Events <-chan Event
	Done   <-chan struct{}

	events chan Event
	done   chan struct{}
}

func newSubscription(id string, size int) *Subscription {
	s := &Subscription{
		ID:     id,
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
	s.Events = s.events
	s.Done = s.done
	return s
}

// send delivers an event without blocking. Returns false if dropped.
func (s *Subscription) send(e Event) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	close(s.done)
}
