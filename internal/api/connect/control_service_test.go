package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/cuebox/internal/app/notification"
	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/app/show"
	"github.com/osa030/cuebox/internal/app/trigger"
	"github.com/osa030/cuebox/internal/domain/cue"
)

type stubShow struct {
	mu     sync.Mutex
	status show.Status
	volume float64
}

func (s *stubShow) Status() show.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubShow) SetVolume(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	return nil
}

type stubDispatcher struct {
	mu      sync.Mutex
	actions []trigger.Action
	err     error
}

func (d *stubDispatcher) Dispatch(a trigger.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, a)
	return d.err
}

func (d *stubDispatcher) recorded() []trigger.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]trigger.Action(nil), d.actions...)
}

type testServer struct {
	svc        *ControlService
	show       *stubShow
	dispatcher *stubDispatcher
	watchers   *notification.Manager
	url        string
	httpClient *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	storm := &cue.Cue{Number: 10, Name: "Storm", FilePath: "storm.wav"}
	st := &stubShow{status: show.Status{
		ShowName:      "Friday",
		Phase:         show.PhaseRunning,
		State:         playback.StatePlaying,
		Standby:       storm,
		LastMessage:   "Playing: Rain",
		CueCount:      12,
		TotalDuration: 90 * time.Second,
	}}
	d := &stubDispatcher{}
	watchers := notification.NewManager()
	svc := NewControlService(st, d, watchers)

	mux := http.NewServeMux()
	path, handler := NewControlServiceHandler(svc, connect.WithInterceptors(NewControlAuthInterceptor("secret")))
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		svc.Close()
		srv.Close()
	})

	return &testServer{svc: svc, show: st, dispatcher: d, watchers: watchers, url: srv.URL, httpClient: srv.Client()}
}

func (ts *testServer) client(token string) ControlServiceClient {
	return NewControlServiceClient(ts.httpClient, ts.url, connect.WithInterceptors(TokenInterceptor(token)))
}

func TestControlService_Auth(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	for _, token := range []string{"", "wrong"} {
		_, err := ts.client(token).GetStatus(ctx, connect.NewRequest(&emptypb.Empty{}))
		require.Error(t, err)
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	}

	stream, err := ts.client("wrong").Watch(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err == nil {
		defer stream.Close()
		assert.False(t, stream.Receive())
		err = stream.Err()
	}
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = ts.client("secret").GetStatus(ctx, connect.NewRequest(&emptypb.Empty{}))
	assert.NoError(t, err)
}

func TestControlService_GetStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.client("secret").GetStatus(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)

	st, err := DecodeStatus(resp.Msg)
	require.NoError(t, err)
	assert.Equal(t, StatusMessage{
		Show:         "Friday",
		Phase:        "running",
		State:        "playing",
		StandbyCue:   10,
		StandbyName:  "Storm",
		CurrentCue:   -1,
		LastMessage:  "Playing: Rain",
		CueCount:     12,
		TotalSeconds: 90,
	}, st)
}

func TestControlService_Commands(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client("secret")
	ctx := context.Background()
	empty := func() *connect.Request[emptypb.Empty] { return connect.NewRequest(&emptypb.Empty{}) }

	resp, err := c.Go(ctx, empty())
	require.NoError(t, err)
	res, err := DecodeResult(resp.Msg)
	require.NoError(t, err)
	assert.Equal(t, ResultMessage{Success: true, Message: "GO"}, res)

	_, err = c.GoTo(ctx, connect.NewRequest(wrapperspb.Int32(7)))
	require.NoError(t, err)
	_, err = c.Pause(ctx, empty())
	require.NoError(t, err)
	_, err = c.Resume(ctx, empty())
	require.NoError(t, err)
	_, err = c.Stop(ctx, empty())
	require.NoError(t, err)
	_, err = c.Panic(ctx, empty())
	require.NoError(t, err)

	got := ts.dispatcher.recorded()
	require.Len(t, got, 6)
	want := []trigger.Command{trigger.CmdGo, trigger.CmdGoTo, trigger.CmdPause, trigger.CmdResume, trigger.CmdStop, trigger.CmdPanic}
	for i, a := range got {
		assert.Equal(t, want[i], a.Command)
		assert.Equal(t, "remote", a.Source)
	}
	assert.Equal(t, 7, got[1].Cue)
	assert.True(t, got[1].HasCue)

	_, err = c.GoTo(ctx, connect.NewRequest(wrapperspb.Int32(-1)))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestControlService_CommandFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.dispatcher.err = errors.Wrap(show.ErrCueNotFound, "cue 99")

	resp, err := ts.client("secret").GoTo(context.Background(), connect.NewRequest(wrapperspb.Int32(99)))
	require.NoError(t, err)
	res, err := DecodeResult(resp.Msg)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "cue 99: cue not found", res.Message)
}

func TestControlService_SetVolume(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client("secret")

	_, err := c.SetVolume(context.Background(), connect.NewRequest(wrapperspb.Double(0.25)))
	require.NoError(t, err)
	assert.Equal(t, 0.25, ts.show.volume)

	_, err = c.SetVolume(context.Background(), connect.NewRequest(wrapperspb.Double(1.5)))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestControlService_Watch(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := ts.client("secret").Watch(ctx, connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive())
	first, err := DecodeEvent(stream.Msg())
	require.NoError(t, err)
	assert.Equal(t, "status", first.Kind)
	assert.Equal(t, "playing", first.State)
	assert.Equal(t, "running", first.Phase)
	assert.Equal(t, 10, first.Cue)

	require.Eventually(t, func() bool { return ts.watchers.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	ts.watchers.Broadcast(&notification.Notification{
		Kind:    notification.KindCueComplete,
		Message: "Cue complete: Storm",
		Cue:     &cue.Cue{Number: 10, Name: "Storm"},
	})

	require.True(t, stream.Receive())
	ev, err := DecodeEvent(stream.Msg())
	require.NoError(t, err)
	assert.Equal(t, "cue_complete", ev.Kind)
	assert.Equal(t, "Cue complete: Storm", ev.Message)
	assert.Equal(t, uint64(1), ev.SequenceNo)
	assert.Equal(t, "Storm", ev.CueName)

	ts.svc.Close()
	assert.False(t, stream.Receive())
	assert.NoError(t, stream.Err())
	assert.Eventually(t, func() bool { return ts.watchers.SubscriberCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatchStream_StatusGoesFirst(t *testing.T) {
	var kinds []string
	w := newWatchStream(func(s *structpb.Struct) error {
		ev, err := DecodeEvent(s)
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
		return nil
	})

	// A broadcast racing the snapshot is held until the snapshot is out.
	require.NoError(t, w.Send(&notification.Notification{Kind: notification.KindState, Time: time.Now()}))
	assert.Empty(t, kinds)

	require.NoError(t, w.start(&notification.Notification{Kind: notification.KindStatus, Time: time.Now()}))
	require.NoError(t, w.Send(&notification.Notification{Kind: notification.KindPhase, Time: time.Now()}))

	assert.Equal(t, []string{"status", "state", "phase"}, kinds)
}
