// Package media defines the contract between the playback engine and an
// audio backend that can decode and render a file from disk.
package media

import "time"

// Callbacks are invoked by a Handle from the backend's own goroutine.
type Callbacks struct {
	// OnEnd fires exactly once per playback run when the media reaches its
	// end. It never fires because of Seek or Stop.
	OnEnd func()
	// OnError fires when decoding or output fails after the handle was opened.
	OnError func(err error)
}

// Handle is one opened media file bound to an output.
type Handle interface {
	Play() error
	Pause() error
	// Stop halts output. Position is left where it was; callers Seek(0).
	Stop() error
	Seek(pos time.Duration) error
	// SetVolume sets linear gain in [0, 1].
	SetVolume(v float64)
	Volume() float64
	Position() time.Duration
	Duration() time.Duration
	Close() error
}

// Backend opens media files. Any backend honouring the Handle contract is
// interchangeable.
type Backend interface {
	Open(path string, cb Callbacks) (Handle, error)
}
