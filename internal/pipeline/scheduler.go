package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/countrycall/internal/observe"
	"github.com/MrWong99/countrycall/pkg/provider/stt"
)

// WindowSource yields windows until it is exhausted or closed. [Chunker]
// implements it.
type WindowSource interface {
	Next(ctx context.Context) (Window, error)
}

var _ WindowSource = (*Chunker)(nil)

// SchedulerOption is a functional option for configuring a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithProviderName sets the provider name used in metrics, spans and
// TranscriptionError values. Default: "stt".
func WithProviderName(name string) SchedulerOption {
	return func(s *Scheduler) {
		s.provider = name
	}
}

// WithLanguage sets the language hint sent with every window.
func WithLanguage(lang string) SchedulerOption {
	return func(s *Scheduler) {
		s.language = lang
	}
}

// WithPrompt sets the vocabulary prompt sent with every window.
func WithPrompt(prompt string) SchedulerOption {
	return func(s *Scheduler) {
		s.prompt = prompt
	}
}

// WithSchedulerMetrics records latency, requests and drops on m.
func WithSchedulerMetrics(m *observe.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithPendingReplaced registers fn to be called with every pending window
// that a newer window replaced before it was transcribed.
func WithPendingReplaced(fn func(Window)) SchedulerOption {
	return func(s *Scheduler) {
		s.onReplaced = fn
	}
}

// Scheduler transcribes windows with at most one call in flight.
// It is safe for concurrent use, but concurrent callers of Transcribe are
// serialised.
type Scheduler struct {
	stt        stt.Transcriber
	provider   string
	language   string
	prompt     string
	metrics    *observe.Metrics
	onReplaced func(Window)

	// inflight is a 1-slot semaphore.
	inflight chan struct{}
}

// NewScheduler returns a Scheduler backed by t.
func NewScheduler(t stt.Transcriber, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		stt:      t,
		provider: "stt",
		inflight: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Transcribe sends w to the backend and returns its transcript. It waits
// while another transcription is in flight. Backend failures are returned
// as *stt.TranscriptionError; ctx errors are returned unchanged.
func (s *Scheduler) Transcribe(ctx context.Context, w Window) (Transcript, error) {
	select {
	case s.inflight <- struct{}{}:
	case <-ctx.Done():
		return Transcript{}, ctx.Err()
	}
	defer func() { <-s.inflight }()

	ctx, span := observe.StartTranscribeSpan(ctx, s.provider, w.Seq, w.Start, w.Length)
	defer span.End()

	start := time.Now()
	text, err := s.stt.Transcribe(ctx, stt.Request{
		Samples:    w.Samples,
		SampleRate: w.SampleRate,
		Language:   s.language,
		Prompt:     s.prompt,
	})
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Transcript{}, err
		}
		if s.metrics != nil {
			s.metrics.RecordProviderRequest(ctx, s.provider, "stt", "error")
			s.metrics.RecordProviderError(ctx, s.provider, "stt")
		}
		observe.Logger(ctx).Warn("transcription failed",
			"provider", s.provider,
			"window_seq", w.Seq,
			"error", err,
		)
		return Transcript{}, stt.AsTranscriptionError(s.provider, err)
	}

	if s.metrics != nil {
		s.metrics.STTDuration.Record(ctx, elapsed.Seconds())
		s.metrics.RecordProviderRequest(ctx, s.provider, "stt", "ok")
	}
	span.SetAttributes(observe.AttrTranscriptLength.Int(len(text)))

	return Transcript{
		Text:      text,
		WindowSeq: w.Seq,
		Start:     w.Start,
		Length:    w.Length,
	}, nil
}

// Run pulls windows from src and transcribes them one at a time until src
// is closed or ctx is done. A window that arrives while a transcription is
// in flight waits in a single pending slot; a newer window replaces it.
// Non-empty transcripts are passed to deliver. Failed windows are logged
// and discarded. Once ctx is done, an in-flight result is abandoned rather
// than delivered.
func (s *Scheduler) Run(ctx context.Context, src WindowSource, deliver func(context.Context, Transcript)) error {
	pending := NewDropQueue[Window](1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer pending.Close()
		for {
			w, err := src.Next(gctx)
			if err != nil {
				return nil
			}
			if old, replaced := pending.Push(w); replaced {
				if s.metrics != nil {
					s.metrics.RecordWindowDropped(gctx, observe.DropStagePending)
				}
				if s.onReplaced != nil {
					s.onReplaced(old)
				}
			}
		}
	})

	g.Go(func() error {
		for {
			w, err := pending.Pop(gctx)
			if err != nil {
				return nil
			}
			t, err := s.Transcribe(gctx, w)
			if gctx.Err() != nil {
				return nil
			}
			if err != nil {
				// Logged by Transcribe; the window is discarded.
				continue
			}
			if t.Text == "" {
				continue
			}
			deliver(gctx, t)
		}
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: scheduler: %w", err)
	}
	return nil
}
