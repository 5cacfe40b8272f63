package show

// Phase represents the show lifecycle phase.
type Phase int

const (
	PhaseIdle    Phase = iota // Not started
	PhaseReady                // Started, nothing fired since start or stop
	PhaseRunning              // A cue has been fired
	PhaseEnded                // The last cue completed its auto-follow chain
	PhaseClosed               // Runner shut down
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReady:
		return "ready"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}
