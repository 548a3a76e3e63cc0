// Package game runs one player's timed round: audio fed by the transport is
// cut into windows, transcribed one at a time, matched against the catalog
// and credited to a [session.Session], while a tick loop drives the
// countdown. Progress is pushed to a [Sink] as [Event] values.
//
// A Game is single-use, like the session it owns. The transport creates a
// new Game for every round a player starts.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/countrycall/internal/observe"
	"github.com/MrWong99/countrycall/internal/pipeline"
	"github.com/MrWong99/countrycall/internal/session"
	"github.com/MrWong99/countrycall/internal/transcript/match"
	"github.com/MrWong99/countrycall/pkg/provider/stt"
)

// ErrDurationNotAllowed is returned by [Game.Start] for a duration outside
// the configured set.
var ErrDurationNotAllowed = errors.New("game: duration not allowed")

// Config holds the tunables of a round.
type Config struct {
	// Durations is the set of round lengths a player may pick.
	Durations []time.Duration

	// Window and Overlap control audio chunking.
	Window        time.Duration
	Overlap       time.Duration
	QueueCapacity int

	// TickInterval is how often the countdown is pushed to the player.
	TickInterval time.Duration

	// SampleRate is the rate of the PCM audio the client sends.
	SampleRate int

	// SilenceRMS skips windows quieter than this. Zero disables the gate.
	SilenceRMS float64

	Language string
	Prompt   string

	// ProviderName labels STT metrics and errors.
	ProviderName string
}

// DefaultConfig returns the standard round settings: 1, 3, 5 and 10 minute
// rounds, 2 s windows with 0.5 s overlap and a 1 s countdown tick.
func DefaultConfig() Config {
	return Config{
		Durations:     []time.Duration{60 * time.Second, 180 * time.Second, 300 * time.Second, 600 * time.Second},
		Window:        2 * time.Second,
		Overlap:       500 * time.Millisecond,
		QueueCapacity: 2,
		TickInterval:  time.Second,
		SampleRate:    16000,
		Language:      "en",
		ProviderName:  "stt",
	}
}

// Allows reports whether d is one of the configured durations.
func (c Config) Allows(d time.Duration) bool {
	return slices.Contains(c.Durations, d)
}

// Option is a functional option for configuring a [Game].
type Option func(*Game)

// WithConfig replaces [DefaultConfig].
func WithConfig(cfg Config) Option {
	return func(g *Game) {
		g.cfg = cfg
	}
}

// WithSessionID sets the session identifier. Default: a random UUID.
func WithSessionID(id string) Option {
	return func(g *Game) {
		g.sessionID = id
	}
}

// WithMetrics records pipeline and game metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Game) {
		g.metrics = m
	}
}

// WithClock replaces time.Now for the session and the tick loop.
func WithClock(now func() time.Time) Option {
	return func(g *Game) {
		if now != nil {
			g.now = now
		}
	}
}

// Game is one player's round. All methods are safe for concurrent use.
type Game struct {
	cfg       Config
	matcher   *match.Matcher
	stt       stt.Transcriber
	sink      Sink
	metrics   *observe.Metrics
	now       func() time.Time
	sessionID string

	sess *session.Session

	mu      sync.Mutex
	chunker *pipeline.Chunker
	cancel  context.CancelFunc

	// emitMu orders crediting and event emission so that no match event
	// follows the ended event.
	emitMu   sync.Mutex
	endOnce  sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

// New returns an idle game that matches transcripts from t with m and
// reports events to sink. A nil sink discards events.
func New(m *match.Matcher, t stt.Transcriber, sink Sink, opts ...Option) *Game {
	g := &Game{
		cfg:     DefaultConfig(),
		matcher: m,
		stt:     t,
		sink:    sink,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	if g.sink == nil {
		g.sink = discardSink{}
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	g.sess = session.New(g.sessionID, session.WithClock(g.now))
	g.sessionID = g.sess.ID()
	return g
}

// ID returns the session identifier.
func (g *Game) ID() string {
	return g.sessionID
}

// Session returns the game's session for read-only progress queries.
func (g *Game) Session() *session.Session {
	return g.sess
}

// Start begins the round. It returns [*session.InvalidStateError] when the
// game was already started, whatever the duration, and
// [ErrDurationNotAllowed] for a duration outside the configured set. The
// round runs until the deadline, [Game.Stop], or ctx is cancelled.
func (g *Game) Start(ctx context.Context, d time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p := g.sess.Phase(); p != session.PhaseIdle {
		return &session.InvalidStateError{Op: "start", Phase: p}
	}
	if !g.cfg.Allows(d) {
		return fmt.Errorf("%w: %s", ErrDurationNotAllowed, d)
	}
	if err := g.sess.Start(d); err != nil {
		return err
	}

	chunker := pipeline.NewChunker(g.cfg.SampleRate,
		pipeline.WithInterval(g.cfg.Window),
		pipeline.WithOverlap(g.cfg.Overlap),
		pipeline.WithQueueCapacity(g.cfg.QueueCapacity),
		pipeline.WithSilenceThreshold(g.cfg.SilenceRMS),
		pipeline.WithChunkerMetrics(g.metrics),
		pipeline.WithBackpressure(func(w pipeline.Window) {
			slog.Debug("game: window dropped, transcription is falling behind",
				"session_id", g.sessionID,
				"window_seq", w.Seq,
			)
		}),
	)
	sched := pipeline.NewScheduler(g.stt,
		pipeline.WithProviderName(g.cfg.ProviderName),
		pipeline.WithLanguage(g.cfg.Language),
		pipeline.WithPrompt(g.cfg.Prompt),
		pipeline.WithSchedulerMetrics(g.metrics),
		pipeline.WithPendingReplaced(func(w pipeline.Window) {
			slog.Debug("game: pending window replaced", "session_id", g.sessionID, "window_seq", w.Seq)
		}),
	)

	runCtx, cancel := context.WithCancel(ctx)
	g.chunker = chunker
	g.cancel = cancel

	g.metrics.ActiveSessions.Add(runCtx, 1)
	slog.Info("game started", "session_id", g.sessionID, "duration", d)

	g.emit(runCtx, Event{
		Type:      EventStarted,
		SessionID: g.sessionID,
		Duration:  d,
		Deadline:  g.sess.Deadline(),
	})

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error { return chunker.Run(egCtx) })
	eg.Go(func() error { return sched.Run(egCtx, chunker, g.deliver) })
	eg.Go(func() error { return g.tickLoop(egCtx) })

	go func() {
		if err := eg.Wait(); err != nil {
			slog.Error("game: pipeline failed", "session_id", g.sessionID, "err", err)
		}
		// Cancelled from outside while still running: end the round so the
		// ended event is still emitted once.
		if sum, err := g.sess.Stop(); err == nil {
			g.finish(ctx, sum)
		}
		g.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
		g.doneOnce.Do(func() { close(g.done) })
	}()
	return nil
}

// Feed forwards 16-bit little-endian mono PCM to the chunker. Audio that
// arrives while the round is not running is dropped.
func (g *Game) Feed(pcm []byte) {
	g.mu.Lock()
	chunker := g.chunker
	g.mu.Unlock()

	if chunker == nil || g.sess.Phase() != session.PhaseRunning {
		return
	}
	// ErrClosed only means the round ended between the phase check and here.
	_ = chunker.FeedPCM(pcm)
}

// Stop ends a running round early and returns its summary. It returns
// [*session.InvalidStateError] when the round is not running.
func (g *Game) Stop() (session.Summary, error) {
	sum, err := g.sess.Stop()
	if err != nil {
		return session.Summary{}, err
	}
	g.finish(context.Background(), sum)
	return sum, nil
}

// Done is closed once the round has ended and its goroutines have exited.
// It is never closed for a game that was not started.
func (g *Game) Done() <-chan struct{} {
	return g.done
}

// Result returns the final summary once the round has ended.
func (g *Game) Result() (session.Summary, bool) {
	return g.sess.Result()
}

func (g *Game) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(g.sess.Remaining(g.now()))
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
		case <-ticker.C:
		}

		now := g.now()
		if sum, ok := g.sess.Tick(now); ok {
			g.finish(ctx, sum)
			return nil
		}
		g.emit(ctx, Event{
			Type:      EventTick,
			SessionID: g.sessionID,
			Remaining: g.sess.Remaining(now),
		})
	}
}

// deliver matches one transcript and credits the session.
func (g *Game) deliver(ctx context.Context, t pipeline.Transcript) {
	g.metrics.Transcripts.Add(ctx, 1)
	results := g.matcher.Match(t.Text)

	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	added := g.sess.RecordMatches(results)
	g.metrics.RecordMatches(ctx, len(added), len(results)-len(added))

	ambiguous := 0
	for _, r := range results {
		if r.Ambiguous {
			ambiguous++
		}
	}
	slog.Debug("game: transcript",
		"session_id", g.sessionID,
		"window_seq", t.WindowSeq,
		"text", t.Text,
		"matches", len(results),
		"ambiguous", ambiguous,
		"new", len(added),
	)

	if len(added) == 0 && g.sess.Phase() != session.PhaseRunning {
		return
	}
	g.sink.Emit(ctx, Event{Type: EventHeard, SessionID: g.sessionID, Text: t.Text})
	if len(added) == 0 {
		return
	}
	names := make([]string, len(added))
	for i, e := range added {
		names[i] = e.Name
	}
	g.sink.Emit(ctx, Event{
		Type:      EventMatch,
		SessionID: g.sessionID,
		Entities:  names,
		Score:     g.sess.Score(),
	})
}

// finish tears down the pipeline and emits the ended event exactly once.
func (g *Game) finish(ctx context.Context, sum session.Summary) {
	ctx = context.WithoutCancel(ctx)
	g.endOnce.Do(func() {
		g.mu.Lock()
		if g.chunker != nil {
			g.chunker.Close()
		}
		if g.cancel != nil {
			g.cancel()
		}
		g.mu.Unlock()

		g.metrics.SessionScore.Record(ctx, int64(sum.Score))
		slog.Info("game ended",
			"session_id", g.sessionID,
			"score", sum.Score,
			"reason", sum.Reason,
			"played", sum.Played,
		)
		g.emit(ctx, Event{Type: EventEnded, SessionID: g.sessionID, Score: sum.Score, Summary: &sum})
	})
}

func (g *Game) emit(ctx context.Context, ev Event) {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()
	g.sink.Emit(ctx, ev)
}
