package trigger

import (
	"sync"
	"time"
)

// Result represents the result of a guard check.
type Result struct {
	Accepted bool
	Code     string // e.g., "go_debounced"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Guard vets an action before it reaches the show.
type Guard interface {
	// Name returns the guard name.
	Name() string
	// AppliesTo returns true if this guard should check the given command.
	AppliesTo(c Command) bool
	// Check performs the guard check. Implementations must be safe for
	// concurrent use; sources run on their own goroutines.
	Check(a Action, now time.Time) Result
}

// Chain executes guards in sequence.
type Chain struct {
	guards []Guard
}

// NewChain creates a new guard chain.
func NewChain() *Chain {
	return &Chain{
		guards: make([]Guard, 0),
	}
}

// Add adds a guard to the chain.
func (c *Chain) Add(g Guard) {
	c.guards = append(c.guards, g)
}

// Execute runs all applicable guards and stops at the first rejection.
func (c *Chain) Execute(a Action, now time.Time) Result {
	for _, g := range c.guards {
		if !g.AppliesTo(a.Command) {
			continue
		}
		if result := g.Check(a, now); !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Guards returns all guards in the chain.
func (c *Chain) Guards() []Guard {
	return c.guards
}

// DebounceGuard rejects a GO that follows the previous accepted GO within
// the window, so a double press on a button fires one cue.
type DebounceGuard struct {
	window time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewDebounceGuard creates a debounce guard with the given window.
func NewDebounceGuard(window time.Duration) *DebounceGuard {
	return &DebounceGuard{window: window}
}

func (g *DebounceGuard) Name() string {
	return "go_debounce"
}

func (g *DebounceGuard) AppliesTo(c Command) bool {
	return c == CmdGo
}

func (g *DebounceGuard) Check(_ Action, now time.Time) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() && now.Sub(g.last) < g.window {
		return Reject("go_debounced")
	}
	g.last = now
	return Accept()
}
