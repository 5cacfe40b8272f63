package notification

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu    sync.Mutex
	got   []*Notification
	err   error
	block chan struct{}
}

func (s *recordingStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, n)
	return nil
}

type closingStream struct {
	recordingStream
	closed chan struct{}
}

func (s *closingStream) Close() error {
	close(s.closed)
	return nil
}

func (s *recordingStream) received() []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Notification(nil), s.got...)
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager()
	fixed := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	a, b := &recordingStream{}, &recordingStream{}
	m.Subscribe(a)
	idB := m.Subscribe(b)
	assert.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(&Notification{Kind: KindStatus, Message: "Playing: Storm"})
	m.Unsubscribe(idB)
	m.Broadcast(&Notification{Kind: KindState, State: "PLAYING"})

	gotA := a.received()
	require.Len(t, gotA, 2)
	assert.Equal(t, uint64(1), gotA[0].SequenceNo)
	assert.Equal(t, uint64(2), gotA[1].SequenceNo)
	assert.Equal(t, fixed, gotA[0].Time)
	assert.Len(t, b.received(), 1)
}

func TestManager_BroadcastSurvivesFailingAndSlowStreams(t *testing.T) {
	m := NewManager()

	good := &recordingStream{}
	failing := &recordingStream{err: errors.New("stream closed")}
	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)

	m.Subscribe(good)
	m.Subscribe(failing)
	m.Subscribe(slow)

	start := time.Now()
	m.Broadcast(&Notification{Kind: KindStatus, Message: "Stopped"})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, good.received(), 1)
}

func TestManager_DropsWatcherAfterRepeatedFailures(t *testing.T) {
	m := NewManager()

	good := &recordingStream{}
	failing := &recordingStream{err: errors.New("stream closed")}
	m.Subscribe(good)
	m.Subscribe(failing)

	for i := 0; i < MaxFailures-1; i++ {
		m.Broadcast(&Notification{Kind: KindStatus})
	}
	assert.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(&Notification{Kind: KindStatus})
	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, good.received(), MaxFailures)
}

func TestManager_ClosesDroppedWatcher(t *testing.T) {
	m := NewManager()
	s := &closingStream{recordingStream: recordingStream{err: errors.New("gone")}, closed: make(chan struct{})}
	m.Subscribe(s)

	for i := 0; i < MaxFailures; i++ {
		m.Broadcast(&Notification{Kind: KindStatus})
	}

	select {
	case <-s.closed:
	default:
		t.Fatal("dropped watcher was not closed")
	}
	assert.Zero(t, m.SubscriberCount())
}

func TestManager_SuccessResetsFailureCount(t *testing.T) {
	m := NewManager()
	s := &recordingStream{err: errors.New("busy")}
	m.Subscribe(s)

	for i := 0; i < MaxFailures-1; i++ {
		m.Broadcast(&Notification{Kind: KindStatus})
	}

	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	m.Broadcast(&Notification{Kind: KindStatus})

	s.mu.Lock()
	s.err = errors.New("busy")
	s.mu.Unlock()
	for i := 0; i < MaxFailures-1; i++ {
		m.Broadcast(&Notification{Kind: KindStatus})
	}
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_Send(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)

	require.NoError(t, m.Send(id, &Notification{Kind: KindPhase, Phase: "ready"}))
	require.NoError(t, m.Send("unknown", &Notification{Kind: KindPhase}))

	got := s.received()
	require.Len(t, got, 1)
	assert.False(t, got[0].Time.IsZero())
	assert.Zero(t, got[0].SequenceNo)
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	m.Subscribe(&recordingStream{})
	m.Close()
	assert.Zero(t, m.SubscriberCount())
}
