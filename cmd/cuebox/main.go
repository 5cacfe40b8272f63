// Package main provides the cuebox engine entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/cuebox/internal/api/connect"
	"github.com/osa030/cuebox/internal/app/notification"
	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/app/schedule"
	"github.com/osa030/cuebox/internal/app/show"
	"github.com/osa030/cuebox/internal/app/trigger"
	"github.com/osa030/cuebox/internal/infra/audio"
	"github.com/osa030/cuebox/internal/infra/audio/otoout"
	"github.com/osa030/cuebox/internal/infra/config"
	"github.com/osa030/cuebox/internal/infra/logger"
	"github.com/osa030/cuebox/internal/infra/showfile"
)

var (
	app        = kingpin.New("cuebox", "cuebox live show audio player")
	configPath = app.Flag("config", "Path to config file").Default("config/cuebox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	runCmd   = app.Command("run", "Run the show (default)").Default()
	showFlag = runCmd.Flag("show", "Show file, overrides show.file in the config").String()

	checkCmd     = app.Command("check", "Validate a show file and print its cue list")
	checkShow    = checkCmd.Arg("show", "Show file (default: show.file from the config)").String()
	checkMeasure = checkCmd.Flag("measure", "Decode each cue to measure its length").Bool()
	checkFFmpeg  = checkCmd.Flag("ffmpeg", "ffmpeg binary used by --measure").Default("ffmpeg").String()

	listMIDICmd = app.Command("list-midi", "List MIDI input ports and exit")
)

// timerResolution bounds how late pre-wait and post-wait timers fire.
const timerResolution = 5 * time.Millisecond

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	switch command {
	case listMIDICmd.FullCommand():
		if err := listMIDI(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		return
	case checkCmd.FullCommand():
		if err := check(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if *showFlag != "" {
		cfg.Show.File = *showFlag
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Engine error: %+v", err)
		os.Exit(1)
	}
}

// run wires the engine together and blocks until a shutdown signal.
// Using a separate function ensures defers run when returning with an error.
func run(cfg *config.Config) error {
	list, err := showfile.Load(cfg.Show.File)
	if err != nil {
		return err
	}
	for _, c := range showfile.Missing(list) {
		zlog.Warn().Msgf("Audio file missing for cue %d (%s): %s", c.Number, c.Name, c.FilePath)
	}
	zlog.Info().Msgf("Loaded show %q: %d cues, %s total", list.Name, list.Len(), audio.FormatDuration(list.TotalDuration()))

	msgs, err := playback.NewMessages(cfg.Messages)
	if err != nil {
		return errors.Wrap(err, "invalid messages config")
	}

	format := audio.Format{SampleRate: cfg.Audio.SampleRate, ChannelCount: cfg.Audio.ChannelCount}
	out, err := otoout.New(format, cfg.Audio.Buffer())
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Suspend(); err != nil {
			zlog.Warn().Msgf("Failed to suspend audio output: %v", err)
		}
	}()

	decoder := audio.NewFFmpeg(cfg.Audio.FFmpegPath, format)
	decoder.MaxDuration = cfg.Audio.MaxCueLength()
	backend := audio.NewBackend(out, decoder, audio.Config{Format: format, MaxDuration: decoder.MaxDuration})

	pool := playback.NewPool(backend, playback.PoolConfig{
		InitialSize: cfg.Pool.InitialSize,
		MaxSize:     cfg.Pool.MaxSize,
		Volume:      cfg.Audio.Volume,
	})
	defer pool.Dispose()
	zlog.Info().Msgf("Track pool ready: %d tracks", pool.Prewarm(cfg.Pool.InitialSize))
	if cfg.Pool.CullingEnabled() {
		pool.EnableCulling(cfg.Pool.CullInterval(), cfg.Pool.IdleThreshold())
	}

	sequencer := playback.NewSequencer(pool, schedule.NewWallClock(timerResolution), playback.SequencerConfig{Messages: msgs})
	defer sequencer.Close()
	sequencer.SetVolume(cfg.Audio.Volume)

	watchers := notification.NewManager()
	defer watchers.Close()

	runner := show.NewRunner(list, sequencer, watchers, show.Config{
		AutoStandby: cfg.Show.AdvanceStandby(),
		Messages:    msgs,
	})
	defer runner.Close()

	sources, err := trigger.NewSourcesFromConfig(cfg.Triggers, os.Stdin)
	if err != nil {
		return err
	}
	dispatcher := trigger.NewDispatcher(runner, trigger.NewGuardChainFromConfig(cfg.Guards))

	controlService := apiconnect.NewControlService(runner, dispatcher, watchers)
	defer controlService.Close()

	mux := http.NewServeMux()
	controlPath, controlHandler := apiconnect.NewControlServiceHandler(
		controlService,
		connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg.Control.Token)),
	)
	mux.Handle(controlPath, controlHandler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Control.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runner.Start(ctx); err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting control server: addr=%s", cfg.Control.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	triggersDone := make(chan struct{})
	go func() {
		defer close(triggersDone)
		dispatcher.Run(ctx, sources)
	}()

	executeHooks(cfg.Control.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "control server error")
	}

	// Silence the room before anything else
	if err := runner.Stop(); err != nil {
		zlog.Debug().Msgf("Stop on shutdown: %v", err)
	}
	cancel()
	<-triggersDone

	// Close watch streams first so Shutdown does not wait on them
	controlService.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Engine stopped")
	executeHooks(cfg.Control.Hooks.OnStopped, "on_stopped")

	return runErr
}

// check loads a show file and prints its cue list.
func check() error {
	path := *checkShow
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		path = cfg.Show.File
	}

	list, err := showfile.Load(path)
	if err != nil {
		return err
	}

	var backend *audio.Backend
	if *checkMeasure {
		format := audio.DefaultFormat()
		backend = audio.NewBackend(nil, audio.NewFFmpeg(*checkFFmpeg, format), audio.Config{Format: format})
	}

	missing := make(map[int]bool)
	for _, c := range showfile.Missing(list) {
		missing[c.Number] = true
	}

	fmt.Printf("\n=== %s ===\n", list.Name)
	fmt.Printf("%5s  %-30s %9s %7s %7s  %s\n", "CUE", "NAME", "LENGTH", "PRE", "POST", "FLAGS")
	for _, c := range list.Cues() {
		length := c.Duration
		if backend != nil && !missing[c.Number] {
			if d, err := backend.Length(context.Background(), c.FilePath); err != nil {
				zlog.Warn().Msgf("Failed to measure cue %d: %v", c.Number, err)
			} else {
				length = d
			}
		}

		flags := ""
		if c.AutoFollow {
			flags += "follow "
		}
		if missing[c.Number] {
			flags += "MISSING"
		}
		fmt.Printf("%5d  %-30s %9s %7s %7s  %s\n",
			c.Number, c.Name, audio.FormatDuration(length),
			audio.FormatDuration(c.PreWait), audio.FormatDuration(c.PostWait), flags)
	}
	fmt.Printf("\n%d cues, %s total\n", list.Len(), audio.FormatDuration(list.TotalDuration()))

	if len(missing) > 0 {
		return errors.Newf("%d cue(s) reference missing audio files", len(missing))
	}
	return nil
}

// listMIDI prints the available MIDI input ports.
func listMIDI() error {
	ports, err := trigger.ListMIDIInputs()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No MIDI input ports found")
		return nil
	}
	fmt.Println("MIDI Inputs:")
	for i, p := range ports {
		fmt.Printf("  %2d  %s\n", i, p)
	}
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
