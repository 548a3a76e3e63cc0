package stt

import (
	"errors"
	"fmt"
)

// ErrEmptyAudio is returned when a Request carries no samples.
var ErrEmptyAudio = errors.New("stt: request contains no audio")

// TranscriptionError reports that a backend failed to transcribe one window.
// It is recoverable: the window is discarded and the session continues.
type TranscriptionError struct {
	// Provider names the backend that failed (e.g., "whisper", "openai").
	Provider string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *TranscriptionError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("stt: transcription failed: %v", e.Err)
	}
	return fmt.Sprintf("stt: %s: transcription failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TranscriptionError) Unwrap() error { return e.Err }

// AsTranscriptionError wraps err into a *TranscriptionError attributed to
// provider. A nil err returns nil; an err that already is a
// *TranscriptionError is returned unchanged.
func AsTranscriptionError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var te *TranscriptionError
	if errors.As(err, &te) {
		return err
	}
	return &TranscriptionError{Provider: provider, Err: err}
}

// Validate reports whether req can be sent to a backend.
func (r Request) Validate() error {
	if len(r.Samples) == 0 {
		return ErrEmptyAudio
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("stt: invalid sample rate %d", r.SampleRate)
	}
	return nil
}
