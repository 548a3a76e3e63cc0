// Package audio provides PCM helpers shared by the capture pipeline and the
// speech-to-text providers.
//
// Clients stream 16-bit signed little-endian PCM. The pipeline works on
// float32 mono samples normalised to [-1.0, 1.0], which is what whisper.cpp
// consumes directly; HTTP-based providers re-encode windows as WAV.
package audio

// BitsPerSample is fixed at 16 for all PCM handled by this package.
const BitsPerSample = 16

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// IsValid reports whether f describes a usable PCM stream.
func (f Format) IsValid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// BytesPerSecond returns the number of 16-bit PCM bytes per second of audio
// in format f. Returns 0 for an invalid format.
func (f Format) BytesPerSecond() int {
	if !f.IsValid() {
		return 0
	}
	return f.SampleRate * f.Channels * (BitsPerSample / 8)
}
