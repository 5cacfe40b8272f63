package playback

import "github.com/cockroachdb/errors"

// Errors returned by the track pool. Returned errors carry context and match
// these sentinels with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("file not found")
	ErrPoolExhausted   = errors.New("track pool exhausted")
	ErrBackendFailure  = errors.New("media backend failure")
	ErrPoolDisposed    = errors.New("track pool disposed")
)

// backendFailure marks err as a backend failure while keeping its message.
func backendFailure(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrBackendFailure)
}
