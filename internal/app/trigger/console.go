package trigger

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ConsoleSource reads one command per line:
//
//	<enter>, go, g   GO
//	go N             fire cue N
//	goto N, sb N     standby cue N
//	p, pause         pause
//	r, resume        resume
//	s, stop          stop
//	!, panic         stop and return to the first cue
type ConsoleSource struct {
	in io.Reader
}

// NewConsoleSource creates a console source reading from in.
func NewConsoleSource(in io.Reader) *ConsoleSource {
	return &ConsoleSource{in: in}
}

func (s *ConsoleSource) Name() string {
	return "stdin"
}

// Run returns when ctx is done or the input reaches EOF. The reading
// goroutine stays blocked on the reader until the next line arrives.
func (s *ConsoleSource) Run(ctx context.Context, emit func(Action)) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return errors.Wrap(err, "failed to read console input")
			}
			return nil
		case line := <-lines:
			a, err := ParseConsoleLine(line)
			if err != nil {
				zlog.Warn().Msgf("trigger: %v", err)
				continue
			}
			emit(a)
		}
	}
}

// ParseConsoleLine converts one console line into an action.
func ParseConsoleLine(line string) (Action, error) {
	fields := strings.Fields(strings.ToLower(line))
	a := Action{Source: "stdin"}

	if len(fields) == 0 {
		a.Command = CmdGo
		return a, nil
	}

	switch fields[0] {
	case "go", "g":
		a.Command = CmdGo
		if len(fields) > 1 {
			n, err := cueArg(fields)
			if err != nil {
				return Action{}, err
			}
			a.Cue, a.HasCue = n, true
		}
	case "goto", "sb":
		n, err := cueArg(fields)
		if err != nil {
			return Action{}, err
		}
		a.Command = CmdGoTo
		a.Cue, a.HasCue = n, true
	case "p", "pause":
		a.Command = CmdPause
	case "r", "resume":
		a.Command = CmdResume
	case "s", "stop":
		a.Command = CmdStop
	case "!", "panic":
		a.Command = CmdPanic
	default:
		return Action{}, errors.Newf("unknown command: %q", line)
	}
	return a, nil
}

func cueArg(fields []string) (int, error) {
	if len(fields) != 2 {
		return 0, errors.Newf("usage: %s N", fields[0])
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 0 {
		return 0, errors.Newf("invalid cue number: %q", fields[1])
	}
	return n, nil
}
