// Package audio implements the media backend: files are decoded to signed
// 16-bit little-endian PCM by ffmpeg and rendered through an output device.
package audio

import (
	"fmt"
	"time"
)

// Default output format.
const (
	DefaultSampleRate   = 48000
	DefaultChannelCount = 2
)

const bytesPerSample = 2 // s16le

// Format describes interleaved s16le PCM.
type Format struct {
	SampleRate   int
	ChannelCount int
}

// DefaultFormat returns 48 kHz stereo.
func DefaultFormat() Format {
	return Format{SampleRate: DefaultSampleRate, ChannelCount: DefaultChannelCount}
}

// FrameSize returns the number of bytes in one frame (one sample per channel).
func (f Format) FrameSize() int {
	return f.ChannelCount * bytesPerSample
}

// BytesPerSecond returns the PCM byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// Duration converts a byte count to playback time.
func (f Format) Duration(n int64) time.Duration {
	bps := int64(f.BytesPerSecond())
	if bps == 0 || n <= 0 {
		return 0
	}
	return time.Duration(n * int64(time.Second) / bps)
}

// Offset converts playback time to a byte offset aligned to a frame.
func (f Format) Offset(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return frames * int64(f.FrameSize())
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/s16le", f.SampleRate, f.ChannelCount)
}

// FormatDuration renders d as mm:ss.t, the way cue lengths are shown to operators.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	tenths := int64(d / (100 * time.Millisecond))
	minutes := tenths / 600
	seconds := (tenths % 600) / 10
	return fmt.Sprintf("%02d:%02d.%d", minutes, seconds, tenths%10)
}
