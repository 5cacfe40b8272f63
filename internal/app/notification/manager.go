// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/cue"
)

// Kind identifies what a notification reports.
type Kind string

const (
	KindStatus      Kind = "status"       // Human-readable status line
	KindState       Kind = "state"        // Aggregate playback state changed
	KindCueComplete Kind = "cue_complete" // A cue finished and the show follows on
	KindTrackFailed Kind = "track_failed" // Backend failure on a playing track
	KindStandby     Kind = "standby"      // Standby cue moved
	KindPhase       Kind = "phase"        // Show runner phase changed
)

// Notification is one event delivered to watchers.
type Notification struct {
	SequenceNo uint64
	Time       time.Time
	Kind       Kind
	State      string
	Phase      string
	Message    string
	Cue        *cue.Cue
}

// Stream represents a notification stream for a subscriber. Streams that
// also implement io.Closer are closed when the manager drops them.
type Stream interface {
	Send(*Notification) error
}

const (
	sendTimeout = 500 * time.Millisecond

	// MaxFailures is how many broadcasts in a row a watcher may miss
	// before it is dropped.
	MaxFailures = 3
)

type subscription struct {
	id       string
	stream   Stream
	failures atomic.Int32 // Consecutive failed or timed-out sends
}

// Manager fans notifications out to watchers. Every broadcast carries a
// sequence number one above the previous broadcast.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    atomic.Uint64
	now           func() time.Time
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		now:           time.Now,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{id: id, stream: stream}
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	return m.sequenceNo.Add(1)
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps n with a sequence number and sends it to all subscribers
// in parallel. A send that fails or exceeds the send timeout counts against
// the subscriber; after MaxFailures in a row it is unsubscribed.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.NextSequenceNo()
	if n.Time.IsZero() {
		n.Time = m.now()
	}

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		evictMu sync.Mutex
		evict   []string
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			if err := deliver(s, n); err != nil {
				zlog.Debug().Err(err).Msgf("notification: send #%d to %s failed", n.SequenceNo, s.id)
				if s.failures.Add(1) >= MaxFailures {
					evictMu.Lock()
					evict = append(evict, s.id)
					evictMu.Unlock()
				}
				return
			}
			s.failures.Store(0)
		}(sub)
	}
	wg.Wait()

	for _, id := range evict {
		zlog.Warn().Msgf("notification: dropping watcher %s after %d failed sends", id, MaxFailures)
		m.drop(id)
	}
}

func (m *Manager) drop(id string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[id]
	delete(m.subscriptions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	if c, ok := sub.stream.(io.Closer); ok {
		if err := c.Close(); err != nil {
			zlog.Debug().Err(err).Msgf("notification: closing watcher %s", id)
		}
	}
}

// deliver sends n to s, giving up after sendTimeout. A send that times out
// keeps running in the background.
func deliver(s *subscription, n *Notification) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.stream.Send(n)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send sends a notification to a specific subscriber.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	if n.Time.IsZero() {
		n.Time = m.now()
	}
	return sub.stream.Send(n)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
