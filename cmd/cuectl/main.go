// Package main provides the cuebox remote control CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apiconnect "github.com/osa030/cuebox/internal/api/connect"
	"github.com/osa030/cuebox/internal/infra/audio"
)

var (
	app    = kingpin.New("cuectl", "cuebox remote control client")
	server = app.Flag("server", "Server address").Default("http://localhost:7700").String()
	token  = app.Flag("token", "Control token (or set CUEBOX_CONTROL_TOKEN env)").Envar("CUEBOX_CONTROL_TOKEN").String()

	statusCmd = app.Command("status", "Show the current show status")
	goCmd     = app.Command("go", "Fire the standby cue")
	gotoCmd   = app.Command("goto", "Put a cue in standby").Alias("standby")
	gotoCue   = gotoCmd.Arg("cue", "Cue number").Required().Int32()
	pauseCmd  = app.Command("pause", "Pause playback")
	resumeCmd = app.Command("resume", "Resume playback")
	stopCmd   = app.Command("stop", "Stop playback")
	panicCmd  = app.Command("panic", "Stop playback and return to the first cue")
	volumeCmd = app.Command("volume", "Set the master volume")
	volumeArg = volumeCmd.Arg("level", "Volume between 0 and 1").Required().Float64()
	watchCmd  = app.Command("watch", "Stream show events until interrupted")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: control token is required (use --token or CUEBOX_CONTROL_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewControlServiceClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.TokenInterceptor(*token)),
	)

	ctx := context.Background()
	empty := connect.NewRequest(&emptypb.Empty{})

	switch command {
	case statusCmd.FullCommand():
		status(ctx, client)
	case goCmd.FullCommand():
		result(client.Go(ctx, empty))
	case gotoCmd.FullCommand():
		result(client.GoTo(ctx, connect.NewRequest(wrapperspb.Int32(*gotoCue))))
	case pauseCmd.FullCommand():
		result(client.Pause(ctx, empty))
	case resumeCmd.FullCommand():
		result(client.Resume(ctx, empty))
	case stopCmd.FullCommand():
		result(client.Stop(ctx, empty))
	case panicCmd.FullCommand():
		result(client.Panic(ctx, empty))
	case volumeCmd.FullCommand():
		result(client.SetVolume(ctx, connect.NewRequest(wrapperspb.Double(*volumeArg))))
	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func status(ctx context.Context, client apiconnect.ControlServiceClient) {
	resp, err := client.GetStatus(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		fail(err)
	}
	s, err := apiconnect.DecodeStatus(resp.Msg)
	if err != nil {
		fail(err)
	}

	fmt.Println("\n=== CURRENT SHOW STATUS ===")
	fmt.Printf("Show: %s (%d cues, %s)\n", s.Show, s.CueCount, audio.FormatDuration(seconds(s.TotalSeconds)))
	fmt.Printf("Phase: %s\n", s.Phase)
	fmt.Printf("State: %s\n", s.State)
	if s.CurrentCue >= 0 {
		fmt.Printf("Current: %d %s\n", s.CurrentCue, s.CurrentName)
	} else {
		fmt.Println("Current: -")
	}
	if s.StandbyCue >= 0 {
		fmt.Printf("Standby: %d %s\n", s.StandbyCue, s.StandbyName)
	} else {
		fmt.Println("Standby: -")
	}
	if s.LastMessage != "" {
		fmt.Printf("Message: %s\n", s.LastMessage)
	}
	fmt.Println()
}

func result(resp *connect.Response[structpb.Struct], err error) {
	if err != nil {
		fail(err)
	}
	r, err := apiconnect.DecodeResult(resp.Msg)
	if err != nil {
		fail(err)
	}
	if !r.Success {
		fmt.Printf("Failed: %s\n", r.Message)
		os.Exit(1)
	}
	fmt.Println(r.Message)
}

func watch(ctx context.Context, client apiconnect.ControlServiceClient) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := client.Watch(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		fail(err)
	}
	defer stream.Close()

	for stream.Receive() {
		ev, err := apiconnect.DecodeEvent(stream.Msg())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		cue := "-"
		if ev.Cue >= 0 {
			cue = fmt.Sprintf("%d %s", ev.Cue, ev.CueName)
		}
		fmt.Printf("[%s] %-12s %-8s %-8s %-20s %s\n", ev.Time, ev.Kind, ev.Phase, ev.State, cue, ev.Message)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fail(err)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}
