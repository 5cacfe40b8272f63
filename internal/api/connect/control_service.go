package connect

import (
	"context"
	"sync"
	"time"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/cuebox/internal/app/notification"
	"github.com/osa030/cuebox/internal/app/show"
	"github.com/osa030/cuebox/internal/app/trigger"
)

// Show is the part of the show runner the control service reads and tunes.
type Show interface {
	Status() show.Status
	SetVolume(v float64) error
}

// Dispatcher applies operator actions.
type Dispatcher interface {
	Dispatch(a trigger.Action) error
}

// ControlService implements the ControlService RPC.
type ControlService struct {
	show       Show
	dispatcher Dispatcher
	watchers   *notification.Manager

	closeOnce sync.Once
	done      chan struct{}
}

// NewControlService creates a new ControlService.
func NewControlService(s Show, dispatcher Dispatcher, watchers *notification.Manager) *ControlService {
	return &ControlService{
		show:       s,
		dispatcher: dispatcher,
		watchers:   watchers,
		done:       make(chan struct{}),
	}
}

// Ensure ControlService implements the interface.
var _ ControlServiceHandler = (*ControlService)(nil)

// GetStatus returns the current show status.
func (s *ControlService) GetStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	msg, err := encodeStatus(s.show.Status())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Go fires the standby cue.
func (s *ControlService) Go(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.dispatch(trigger.Action{Command: trigger.CmdGo}, "GO")
}

// GoTo puts a cue in standby.
func (s *ControlService) GoTo(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int32Value],
) (*connect.Response[structpb.Struct], error) {
	if req.Msg.GetValue() < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, nil)
	}
	a := trigger.Action{Command: trigger.CmdGoTo, Cue: int(req.Msg.GetValue()), HasCue: true}
	return s.dispatch(a, "Standby moved")
}

// Pause pauses playback.
func (s *ControlService) Pause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.dispatch(trigger.Action{Command: trigger.CmdPause}, "Paused")
}

// Resume resumes playback.
func (s *ControlService) Resume(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.dispatch(trigger.Action{Command: trigger.CmdResume}, "Resumed")
}

// Stop stops playback.
func (s *ControlService) Stop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.dispatch(trigger.Action{Command: trigger.CmdStop}, "Stopped")
}

// Panic stops playback and returns to the first cue.
func (s *ControlService) Panic(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.dispatch(trigger.Action{Command: trigger.CmdPanic}, "Stopped, standby on first cue")
}

// SetVolume sets the master volume.
func (s *ControlService) SetVolume(
	ctx context.Context,
	req *connect.Request[wrapperspb.DoubleValue],
) (*connect.Response[structpb.Struct], error) {
	v := req.Msg.GetValue()
	if v < 0 || v > 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, nil)
	}
	if err := s.show.SetVolume(v); err != nil {
		return s.result(false, err.Error())
	}
	return s.result(true, "Volume set")
}

// Watch streams show events until the client goes away or the service
// closes. The first message is a status event for the current state.
func (s *ControlService) Watch(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	w := newWatchStream(stream.Send)
	id := s.watchers.Subscribe(w)
	defer s.watchers.Unsubscribe(id)

	zlog.Debug().Msgf("control: watcher %s connected", id)

	st := s.show.Status()
	first := &notification.Notification{
		Time:    time.Now(),
		Kind:    notification.KindStatus,
		State:   st.State.String(),
		Phase:   st.Phase.String(),
		Message: st.LastMessage,
		Cue:     st.Standby,
	}
	if err := w.start(first); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.done:
	case <-w.dropped:
		zlog.Warn().Msgf("control: watcher %s dropped, too slow", id)
		return connect.NewError(connect.CodeResourceExhausted, nil)
	}
	zlog.Debug().Msgf("control: watcher %s disconnected", id)
	return nil
}

// Close ends every open Watch stream.
func (s *ControlService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *ControlService) dispatch(a trigger.Action, okMessage string) (*connect.Response[structpb.Struct], error) {
	a.Source = "remote"
	if err := s.dispatcher.Dispatch(a); err != nil {
		return s.result(false, err.Error())
	}
	return s.result(true, okMessage)
}

func (s *ControlService) result(success bool, message string) (*connect.Response[structpb.Struct], error) {
	msg, err := encodeResult(success, message)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// watchStream adapts a server stream to notification.Stream. Sends are
// serialised; the manager may call Send from several goroutines.
// Notifications that arrive before start are held back so the status
// snapshot always goes out first.
type watchStream struct {
	mu      sync.Mutex
	send    func(*structpb.Struct) error
	started bool
	pending []*notification.Notification

	closeOnce sync.Once
	dropped   chan struct{}
}

func newWatchStream(send func(*structpb.Struct) error) *watchStream {
	return &watchStream{send: send, dropped: make(chan struct{})}
}

func (w *watchStream) Send(n *notification.Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		w.pending = append(w.pending, n)
		return nil
	}
	return w.sendLocked(n)
}

// start sends first, then whatever was broadcast while it was being built.
func (w *watchStream) start(first *notification.Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.sendLocked(first); err != nil {
		return err
	}
	for _, n := range w.pending {
		if err := w.sendLocked(n); err != nil {
			return err
		}
	}
	w.pending = nil
	w.started = true
	return nil
}

func (w *watchStream) sendLocked(n *notification.Notification) error {
	msg, err := encodeNotification(n)
	if err != nil {
		return err
	}
	return w.send(msg)
}

// Close is called by the manager when it drops this watcher.
func (w *watchStream) Close() error {
	w.closeOnce.Do(func() { close(w.dropped) })
	return nil
}
