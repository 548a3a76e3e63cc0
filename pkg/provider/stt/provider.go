// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A Transcriber wraps a batch transcription service (a local whisper.cpp
// server, the whisper.cpp CGO bindings, Deepgram or OpenAI) behind a uniform
// call: one audio window in, one piece of text out. The game pipeline never
// holds more than one call in flight per player, so implementations only need
// to be safe for concurrent use across players.
//
// Failures are reported as *TranscriptionError. They are recoverable: the
// caller discards the window and continues with the next one.
package stt

import "context"

// Request is a single window of mono audio to transcribe.
type Request struct {
	// Samples are mono float32 samples normalised to [-1.0, 1.0].
	Samples []float32

	// SampleRate is the sample rate of Samples in Hz. Most backends expect
	// 16000.
	SampleRate int

	// Language is the BCP-47 language hint (e.g., "en"). Empty lets the
	// backend auto-detect, if supported.
	Language string

	// Prompt is an optional vocabulary hint passed to backends that accept
	// one (OpenAI, whisper.cpp).
	Prompt string
}

// Transcriber is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Transcriber interface {
	// Transcribe returns the text spoken in req. An empty string with a nil
	// error means the backend heard nothing. Implementations must honour ctx
	// cancellation.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// TranscriberFunc adapts an ordinary function to the Transcriber interface.
type TranscriberFunc func(ctx context.Context, req Request) (string, error)

// Transcribe calls f(ctx, req).
func (f TranscriberFunc) Transcribe(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var _ Transcriber = TranscriberFunc(nil)
