// Package pipeline turns a live PCM stream into transcripts.
//
// A [Chunker] accumulates samples and cuts them into fixed-interval
// [Window] values that overlap slightly with their predecessor, so a word
// spoken across a boundary is heard whole at least once. Windows wait in a
// bounded [DropQueue]; when the consumer falls behind the oldest window is
// dropped and a backpressure callback fires.
//
// A [Scheduler] pulls windows and transcribes them one at a time. While a
// transcription is in flight, at most one further window waits in a pending
// slot; a newer window replaces it. Failed windows are discarded, never
// retried.
package pipeline

import (
	"errors"
	"time"
)

// ErrClosed is returned by queue and chunker operations after Close.
var ErrClosed = errors.New("pipeline: closed")

// Window is a contiguous slice of mono audio ready for transcription.
type Window struct {
	// Seq numbers windows of one chunker from 1.
	Seq uint64

	// Samples are mono float32 samples in [-1.0, 1.0], including the overlap
	// carried over from the previous window.
	Samples []float32

	// SampleRate of Samples in Hz.
	SampleRate int

	// Start is the stream offset of the first sample.
	Start time.Duration

	// Length is the duration of Samples.
	Length time.Duration
}

// End returns the stream offset just past the last sample.
func (w Window) End() time.Duration {
	return w.Start + w.Length
}

// Transcript is the text recognised in one window.
type Transcript struct {
	Text      string
	WindowSeq uint64
	Start     time.Duration
	Length    time.Duration
}

// samplesToDuration converts a sample count at rate to a duration.
func samplesToDuration(n int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// durationToSamples converts d to a sample count at rate, rounding down.
func durationToSamples(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int(int64(d) * int64(rate) / int64(time.Second))
}
