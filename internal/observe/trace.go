package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/countrycall"

// SpanTranscribe is the name of the span covering one window transcription.
const SpanTranscribe = "stt.transcribe"

// Span attribute keys set on [SpanTranscribe].
const (
	AttrSTTProvider      = attribute.Key("stt.provider")
	AttrWindowSeq        = attribute.Key("window.seq")
	AttrWindowStart      = attribute.Key("window.start_s")
	AttrWindowLength     = attribute.Key("window.length_s")
	AttrTranscriptLength = attribute.Key("transcript.length")
)

// Tracer returns the countrycall tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartTranscribeSpan starts a [SpanTranscribe] span for window seq of an
// audio stream, covering [start, start+length).
func StartTranscribeSpan(ctx context.Context, provider string, seq uint64, start, length time.Duration) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanTranscribe,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrSTTProvider.String(provider),
			AttrWindowSeq.Int64(int64(seq)),
			AttrWindowStart.Float64(start.Seconds()),
			AttrWindowLength.Float64(length.Seconds()),
		),
	)
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id of the span
// in ctx attached. Without a span it is [slog.Default].
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
