// Package cuelist provides the CueList domain entity.
package cuelist

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/cuebox/internal/domain/cue"
)

// CueList is an ordered, immutable list of cues with unique numbers.
type CueList struct {
	Name  string
	cues  []*cue.Cue
	index map[int]int // cue number -> position
}

// New builds a cue list, validating every cue and rejecting duplicate numbers.
func New(name string, cues []*cue.Cue) (*CueList, error) {
	l := &CueList{
		Name:  name,
		cues:  make([]*cue.Cue, 0, len(cues)),
		index: make(map[int]int, len(cues)),
	}
	for i, c := range cues {
		if err := c.Validate(); err != nil {
			return nil, errors.Wrapf(err, "cue at position %d", i)
		}
		if _, dup := l.index[c.Number]; dup {
			return nil, errors.Newf("duplicate cue number %d", c.Number)
		}
		l.index[c.Number] = len(l.cues)
		l.cues = append(l.cues, c)
	}
	return l, nil
}

// Len returns the number of cues.
func (l *CueList) Len() int {
	return len(l.cues)
}

// Cues returns a copy of the cue slice in list order.
func (l *CueList) Cues() []*cue.Cue {
	out := make([]*cue.Cue, len(l.cues))
	copy(out, l.cues)
	return out
}

// First returns the first cue, or nil for an empty list.
func (l *CueList) First() *cue.Cue {
	if len(l.cues) == 0 {
		return nil
	}
	return l.cues[0]
}

// ByNumber looks a cue up by its number.
func (l *CueList) ByNumber(number int) (*cue.Cue, bool) {
	i, ok := l.index[number]
	if !ok {
		return nil, false
	}
	return l.cues[i], true
}

// Index returns the list position of a cue number, or -1.
func (l *CueList) Index(number int) int {
	if i, ok := l.index[number]; ok {
		return i
	}
	return -1
}

// After returns the cue that follows the given cue number in list order.
// Returns nil when the number is unknown or is the last cue.
func (l *CueList) After(number int) *cue.Cue {
	i, ok := l.index[number]
	if !ok || i+1 >= len(l.cues) {
		return nil
	}
	return l.cues[i+1]
}

// TotalDuration sums the informational durations of all cues.
func (l *CueList) TotalDuration() time.Duration {
	var total time.Duration
	for _, c := range l.cues {
		total += c.Duration
	}
	return total
}
