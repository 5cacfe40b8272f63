// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// TimeFormat stamps log lines with millisecond precision so cue timing can be
// read straight from the log.
const TimeFormat = "15:04:05.000"

// Config represents logger configuration.
type Config struct {
	Output string // "stdout", "stderr", or file path
	Level  string // "trace", "debug", "info", "warn", "error"
	File   string // log file path (used when Output is not stdout/stderr)
}

var (
	mu      sync.Mutex
	logFile *os.File // Open log file, closed on re-Init and Close
)

// Init replaces the global logger. Console outputs get a colored human
// format, files get JSON lines. Callers are attached at debug and below.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)

	out, console, err := openOutput(cfg)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = TimeFormat
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	var w io.Writer = out
	if console {
		cw := zerolog.ConsoleWriter{Out: out, TimeFormat: TimeFormat}
		if level <= zerolog.DebugLevel {
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i any) string { return "(" + i.(string) + ")" }
		}
		w = cw
	}

	ctx := zerolog.New(w).With().Timestamp()
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	l := ctx.Logger()

	zerolog.DefaultContextLogger = &l
	zlog.Logger = l
	return nil
}

// Close closes the log file opened by Init, if any. The global logger falls
// back to stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	zlog.Logger = zlog.Logger.Output(os.Stderr)
	return err
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return zlog.Logger.With().Str("component", name).Logger()
}

func openOutput(cfg Config) (io.Writer, bool, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		return os.Stdout, true, nil
	case "stderr":
		return os.Stderr, true, nil
	}

	path := cfg.File
	if path == "" {
		path = cfg.Output
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, err
	}

	mu.Lock()
	prev := logFile
	logFile = f
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return f, false, nil
}

// shortCaller trims caller paths to "dir/file.go:line".
func shortCaller(pc uintptr, file string, line int) string {
	dir, base := filepath.Split(file)
	if parent := filepath.Base(dir); dir != "" && parent != "." && parent != string(filepath.Separator) {
		return parent + "/" + base + ":" + strconv.Itoa(line)
	}
	return base + ":" + strconv.Itoa(line)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
