package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ControlServiceName is the fully-qualified name of the control service.
const ControlServiceName = "cuebox.control.v1.ControlService"

// Procedure paths of the control service.
const (
	ControlGetStatusProcedure = "/" + ControlServiceName + "/GetStatus"
	ControlGoProcedure        = "/" + ControlServiceName + "/Go"
	ControlGoToProcedure      = "/" + ControlServiceName + "/GoTo"
	ControlPauseProcedure     = "/" + ControlServiceName + "/Pause"
	ControlResumeProcedure    = "/" + ControlServiceName + "/Resume"
	ControlStopProcedure      = "/" + ControlServiceName + "/Stop"
	ControlPanicProcedure     = "/" + ControlServiceName + "/Panic"
	ControlSetVolumeProcedure = "/" + ControlServiceName + "/SetVolume"
	ControlWatchProcedure     = "/" + ControlServiceName + "/Watch"
)

// ControlServiceHandler is the server side of the control service.
// Messages are protobuf well-known types so no code generation is needed.
type ControlServiceHandler interface {
	GetStatus(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Go(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	GoTo(context.Context, *connect.Request[wrapperspb.Int32Value]) (*connect.Response[structpb.Struct], error)
	Pause(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Resume(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Stop(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Panic(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	SetVolume(context.Context, *connect.Request[wrapperspb.DoubleValue]) (*connect.Response[structpb.Struct], error)
	Watch(context.Context, *connect.Request[emptypb.Empty], *connect.ServerStream[structpb.Struct]) error
}

// NewControlServiceHandler builds an HTTP handler for svc and returns the
// path to mount it on.
func NewControlServiceHandler(svc ControlServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	handlers := map[string]http.Handler{
		ControlGetStatusProcedure: connect.NewUnaryHandler(ControlGetStatusProcedure, svc.GetStatus, opts...),
		ControlGoProcedure:        connect.NewUnaryHandler(ControlGoProcedure, svc.Go, opts...),
		ControlGoToProcedure:      connect.NewUnaryHandler(ControlGoToProcedure, svc.GoTo, opts...),
		ControlPauseProcedure:     connect.NewUnaryHandler(ControlPauseProcedure, svc.Pause, opts...),
		ControlResumeProcedure:    connect.NewUnaryHandler(ControlResumeProcedure, svc.Resume, opts...),
		ControlStopProcedure:      connect.NewUnaryHandler(ControlStopProcedure, svc.Stop, opts...),
		ControlPanicProcedure:     connect.NewUnaryHandler(ControlPanicProcedure, svc.Panic, opts...),
		ControlSetVolumeProcedure: connect.NewUnaryHandler(ControlSetVolumeProcedure, svc.SetVolume, opts...),
		ControlWatchProcedure:     connect.NewServerStreamHandler(ControlWatchProcedure, svc.Watch, opts...),
	}

	prefix := "/" + ControlServiceName + "/"
	return prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok || !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// ControlServiceClient is the client side of the control service.
type ControlServiceClient interface {
	GetStatus(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Go(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	GoTo(context.Context, *connect.Request[wrapperspb.Int32Value]) (*connect.Response[structpb.Struct], error)
	Pause(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Resume(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Stop(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Panic(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	SetVolume(context.Context, *connect.Request[wrapperspb.DoubleValue]) (*connect.Response[structpb.Struct], error)
	Watch(context.Context, *connect.Request[emptypb.Empty]) (*connect.ServerStreamForClient[structpb.Struct], error)
}

// NewControlServiceClient creates a client for the control service at baseURL.
func NewControlServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ControlServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &controlServiceClient{
		getStatus: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ControlGetStatusProcedure, opts...),
		goCue:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ControlGoProcedure, opts...),
		goTo:      connect.NewClient[wrapperspb.Int32Value, structpb.Struct](httpClient, baseURL+ControlGoToProcedure, opts...),
		pause:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ControlPauseProcedure, opts...),
		resume:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ControlResumeProcedure, opts...),
		stop:      connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ControlStopProcedure, opts...),
		panic:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ControlPanicProcedure, opts...),
		setVolume: connect.NewClient[wrapperspb.DoubleValue, structpb.Struct](httpClient, baseURL+ControlSetVolumeProcedure, opts...),
		watch:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ControlWatchProcedure, opts...),
	}
}

type controlServiceClient struct {
	getStatus *connect.Client[emptypb.Empty, structpb.Struct]
	goCue     *connect.Client[emptypb.Empty, structpb.Struct]
	goTo      *connect.Client[wrapperspb.Int32Value, structpb.Struct]
	pause     *connect.Client[emptypb.Empty, structpb.Struct]
	resume    *connect.Client[emptypb.Empty, structpb.Struct]
	stop      *connect.Client[emptypb.Empty, structpb.Struct]
	panic     *connect.Client[emptypb.Empty, structpb.Struct]
	setVolume *connect.Client[wrapperspb.DoubleValue, structpb.Struct]
	watch     *connect.Client[emptypb.Empty, structpb.Struct]
}

func (c *controlServiceClient) GetStatus(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.getStatus.CallUnary(ctx, req)
}

func (c *controlServiceClient) Go(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.goCue.CallUnary(ctx, req)
}

func (c *controlServiceClient) GoTo(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*connect.Response[structpb.Struct], error) {
	return c.goTo.CallUnary(ctx, req)
}

func (c *controlServiceClient) Pause(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.pause.CallUnary(ctx, req)
}

func (c *controlServiceClient) Resume(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.resume.CallUnary(ctx, req)
}

func (c *controlServiceClient) Stop(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.stop.CallUnary(ctx, req)
}

func (c *controlServiceClient) Panic(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.panic.CallUnary(ctx, req)
}

func (c *controlServiceClient) SetVolume(ctx context.Context, req *connect.Request[wrapperspb.DoubleValue]) (*connect.Response[structpb.Struct], error) {
	return c.setVolume.CallUnary(ctx, req)
}

func (c *controlServiceClient) Watch(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.ServerStreamForClient[structpb.Struct], error) {
	return c.watch.CallServerStream(ctx, req)
}
