// Package mock provides a test double for the stt.Transcriber interface.
//
// Transcriber replays a scripted sequence of results and records every call.
// It is safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/countrycall/pkg/provider/stt"
)

// Result is one scripted response.
type Result struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the request samples.
	Samples    []float32
	SampleRate int
	Language   string
	Prompt     string
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Script holds the results returned by successive calls, in order. Once
	// exhausted, Default is returned.
	Script []Result

	// Default is returned once Script is exhausted.
	Default Result

	// Block, if non-nil, makes every call wait until it is closed or the
	// context is done.
	Block chan struct{}

	// Started, if non-nil, receives a value every time a call begins.
	Started chan struct{}

	// --- Call records ---

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall

	inFlight    int
	maxInFlight int
}

// Transcribe records the call and returns the next scripted result.
func (m *Transcriber) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, TranscribeCall{
		Samples:    append([]float32(nil), req.Samples...),
		SampleRate: req.SampleRate,
		Language:   req.Language,
		Prompt:     req.Prompt,
	})
	res := m.Default
	if len(m.Script) > 0 {
		res = m.Script[0]
		m.Script = m.Script[1:]
	}
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	block, started := m.Block, m.Started
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if started != nil {
		select {
		case started <- struct{}{}:
		case <-ctx.Done():
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return res.Text, res.Err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MaxInFlight returns the highest number of concurrent Transcribe calls
// observed. Thread-safe.
func (m *Transcriber) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// ResetCalls clears all recorded calls. Thread-safe.
func (m *Transcriber) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.maxInFlight = 0
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
