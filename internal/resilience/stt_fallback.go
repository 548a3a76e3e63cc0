package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/countrycall/pkg/provider/stt"
)

// ErrNoBackendAvailable is returned by [STTFallback.Check] when every
// backend's circuit is open.
var ErrNoBackendAvailable = errors.New("resilience: no transcription backend available")

// STTFallback implements [stt.Transcriber] with failover across several
// backends. Each backend has its own circuit breaker. A window is sent to at
// most one backend per failure: a failing backend hands the same window to
// the next, never back to itself.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe sends req to the first backend whose breaker admits it.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, req)
	})
}

// Name returns the backend names joined in failover order, e.g.
// "deepgram>whisper".
func (f *STTFallback) Name() string {
	return strings.Join(f.group.Names(), ">")
}

// States returns every backend's breaker state.
func (f *STTFallback) States() map[string]State {
	return f.group.States()
}

// Check reports whether any backend can take a call. It is used as a
// readiness check and never contacts a backend.
func (f *STTFallback) Check(_ context.Context) error {
	if f.group.Available() {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrNoBackendAvailable, f.group.States())
}
