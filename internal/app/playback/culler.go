package playback

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// cullerStopTimeout bounds how long DisableCulling waits for the goroutine.
const cullerStopTimeout = 2 * time.Second

type culler struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// EnableCulling starts disposing idle available tracks every interval.
// Enabling while already enabled restarts the schedule with the new values.
func (p *Pool) EnableCulling(interval, idle time.Duration) {
	if interval <= 0 {
		interval = DefaultCullInterval
	}
	if idle < 0 {
		idle = DefaultIdleThreshold
	}

	p.cullMu.Lock()
	defer p.cullMu.Unlock()

	p.stopCullerLocked()

	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()
	if disposed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &culler{cancel: cancel, done: make(chan struct{})}
	p.culler = c

	go func() {
		defer close(c.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Cull(p.now(), idle)
			}
		}
	}()

	zlog.Debug().Msgf("playback: culling enabled (interval=%s, idle=%s)", interval, idle)
}

// DisableCulling stops the culling schedule. Safe to call when not enabled.
func (p *Pool) DisableCulling() {
	p.cullMu.Lock()
	defer p.cullMu.Unlock()
	p.stopCullerLocked()
}

// CullingEnabled reports whether the culling schedule is running.
func (p *Pool) CullingEnabled() bool {
	p.cullMu.Lock()
	defer p.cullMu.Unlock()
	return p.culler != nil
}

// stopCullerLocked must be called with p.cullMu held.
func (p *Pool) stopCullerLocked() {
	c := p.culler
	if c == nil {
		return
	}
	p.culler = nil
	c.cancel()

	select {
	case <-c.done:
	case <-time.After(cullerStopTimeout):
		zlog.Warn().Msgf("playback: culler did not stop within %s, abandoning it", cullerStopTimeout)
	}
}
