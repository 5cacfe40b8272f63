package audio

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// pcmSource serves decoded PCM to an output player.
type pcmSource struct {
	mu   sync.Mutex
	data []byte
	off  int64
}

func newPCMSource(data []byte) *pcmSource {
	return &pcmSource{data: data}
}

func (s *pcmSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.off:])
	s.off += int64(n)
	return n, nil
}

func (s *pcmSource) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.off + offset
	case io.SeekEnd:
		abs = int64(len(s.data)) + offset
	default:
		return 0, errors.Newf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.Newf("negative position %d", abs)
	}
	if abs > int64(len(s.data)) {
		abs = int64(len(s.data))
	}
	s.off = abs
	return abs, nil
}

// offset returns how far the player has read.
func (s *pcmSource) offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.off
}

func (s *pcmSource) size() int64 {
	return int64(len(s.data))
}
