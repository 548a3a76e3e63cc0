package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Converter turns a stream of raw client PCM chunks into mono float32
// samples at a target sample rate. Transport frames are not guaranteed to
// end on a sample boundary, so a trailing partial frame is carried over to
// the next call.
//
// Create one per stream; not designed for shared use across goroutines.
type Converter struct {
	Source     Format
	TargetRate int

	carry          []byte
	warnedMismatch sync.Once
}

// NewConverter returns a Converter from src to mono float32 at targetRate.
func NewConverter(src Format, targetRate int) *Converter {
	return &Converter{Source: src, TargetRate: targetRate}
}

// Convert decodes chunk and returns the resulting samples. Returns nil when
// chunk does not yet complete a single frame.
func (c *Converter) Convert(chunk []byte) []float32 {
	frameBytes := 2 * max(c.Source.Channels, 1)

	data := chunk
	if len(c.carry) > 0 {
		data = append(c.carry, chunk...)
		c.carry = nil
	}
	if rem := len(data) % frameBytes; rem != 0 {
		c.carry = append([]byte(nil), data[len(data)-rem:]...)
		data = data[:len(data)-rem]
	}
	if len(data) == 0 {
		return nil
	}

	samples := PCM16ToFloat32Mono(data, c.Source.Channels)
	if c.TargetRate > 0 && c.Source.SampleRate > 0 && c.Source.SampleRate != c.TargetRate {
		c.warnedMismatch.Do(func() {
			slog.Warn("audio format mismatch: resampling",
				"from", formatString(c.Source.SampleRate, c.Source.Channels),
				"to", formatString(c.TargetRate, 1),
			)
		})
		samples = ResampleMono(samples, c.Source.SampleRate, c.TargetRate)
	}
	return samples
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
