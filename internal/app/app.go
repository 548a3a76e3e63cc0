// Package app wires the countrycall subsystems into a running server.
//
// The App owns the full lifecycle: New loads the catalog, builds the
// matcher and the HTTP routes, Run serves until the context ends, and
// Shutdown ends every running round and releases providers.
//
// For testing, inject doubles via functional options ([WithCatalog],
// [WithMetrics]). When an option is not provided, New builds the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/countrycall/internal/catalog"
	"github.com/MrWong99/countrycall/internal/config"
	"github.com/MrWong99/countrycall/internal/game"
	"github.com/MrWong99/countrycall/internal/health"
	"github.com/MrWong99/countrycall/internal/observe"
	"github.com/MrWong99/countrycall/internal/session"
	"github.com/MrWong99/countrycall/internal/transcript/match"
	"github.com/MrWong99/countrycall/internal/transcript/phonetic"
	"github.com/MrWong99/countrycall/internal/transport"
	"github.com/MrWong99/countrycall/pkg/provider/stt"
)

const (
	readHeaderTimeout = 10 * time.Second
	serverShutdown    = 10 * time.Second
)

// Providers holds the provider handles built by main.go from the registry.
type Providers struct {
	// STT transcribes audio windows. Required.
	STT stt.Transcriber

	// STTName labels transcription metrics and errors.
	STTName string

	// Closers release provider resources during Shutdown, in order.
	Closers []func() error
}

// readinessChecker is implemented by transcribers that can report whether
// they currently accept calls without contacting a backend.
type readinessChecker interface {
	Check(ctx context.Context) error
}

// roundSettings is the hot-reloadable part of the config.
type roundSettings struct {
	game            game.Config
	defaultDuration time.Duration
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	catalog  *catalog.Catalog
	matcher  *match.Matcher
	metrics  *observe.Metrics
	registry *Registry
	levelVar *slog.LevelVar
	settings atomic.Pointer[roundSettings]

	handler http.Handler

	// baseCtx parents every request context. Cancelling it ends open
	// WebSocket connections, which the server's Shutdown does not track.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	server *http.Server

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithCatalog injects a catalog instead of loading one from config.
func WithCatalog(c *catalog.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithArchiveSize sets how many ended-round summaries are kept.
func WithArchiveSize(n int) Option {
	return func(a *App) { a.registry = NewRegistry(n) }
}

// New creates an App from cfg and the providers built by main.go.
// A [*catalog.CatalogError] from loading the catalog is returned wrapped
// and is fatal for the caller.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: an STT provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = NewRegistry(DefaultArchiveSize)
	}

	// ── 1. Catalog ───────────────────────────────────────────────────────
	if err := a.initCatalog(); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 2. Matcher ───────────────────────────────────────────────────────
	a.initMatcher()

	// ── 3. Round settings ────────────────────────────────────────────────
	a.storeSettings(cfg.Game)

	// ── 4. Routes ────────────────────────────────────────────────────────
	a.initRoutes()

	a.baseCtx, a.baseCancel = context.WithCancel(context.WithoutCancel(ctx))

	slog.Info("app initialised",
		"countries", a.catalog.Len(),
		"stt", providers.STTName,
		"phonetic", cfg.Matcher.Phonetic,
		"durations", cfg.Game.Durations,
	)
	return a, nil
}

func (a *App) initCatalog() error {
	if a.catalog != nil {
		return nil
	}
	var (
		cat *catalog.Catalog
		err error
	)
	if path := a.cfg.Catalog.Path; path != "" {
		cat, err = catalog.LoadFile(path, catalog.Format(a.cfg.Catalog.Format))
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		return err
	}
	a.catalog = cat
	return nil
}

func (a *App) initMatcher() {
	var opts []match.Option
	if a.cfg.Matcher.Phonetic {
		opts = append(opts, match.WithPhonetic(phonetic.New(
			a.catalog.Aliases(),
			phonetic.WithThreshold(a.cfg.Matcher.PhoneticThreshold),
		)))
	}
	a.matcher = match.New(a.catalog, opts...)
}

func (a *App) initRoutes() {
	mux := http.NewServeMux()

	transport.New(a).Register(mux)

	checkers := []health.Checker{
		health.CheckFunc("catalog", func(context.Context) error {
			if a.catalog.Len() == 0 {
				return errors.New("catalog is empty")
			}
			return nil
		}),
	}
	if rc, ok := a.providers.STT.(readinessChecker); ok {
		checkers = append(checkers, health.CheckFunc("stt", rc.Check))
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	a.handler = observe.Middleware(a.metrics)(mux)
}

func (a *App) storeSettings(g config.GameConfig) {
	a.settings.Store(&roundSettings{
		game: game.Config{
			Durations:     append([]time.Duration(nil), g.Durations...),
			Window:        g.Window,
			Overlap:       g.Overlap,
			QueueCapacity: g.QueueCapacity,
			TickInterval:  g.TickInterval,
			SampleRate:    g.SampleRate,
			SilenceRMS:    g.SilenceRMS,
			Language:      g.Language,
			Prompt:        g.Prompt,
			ProviderName:  a.providers.STTName,
		},
		defaultDuration: g.DefaultDuration,
	})
}

// Handler returns the root HTTP handler with every route and the
// observability middleware applied.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Registry returns the game registry.
func (a *App) Registry() *Registry {
	return a.registry
}

// ─── transport.Backend ───────────────────────────────────────────────────────

var _ transport.Backend = (*App)(nil)

// StartGame starts a new round of duration d for one player. A zero d
// selects the configured default. Events are pushed to sink. The round ends
// at its deadline, on [game.Game.Stop], or when ctx is cancelled.
func (a *App) StartGame(ctx context.Context, sink game.Sink, d time.Duration) (*game.Game, error) {
	s := a.settings.Load()
	if d == 0 {
		d = s.defaultDuration
	}
	g := game.New(a.matcher, a.providers.STT, sink,
		game.WithConfig(s.game),
		game.WithMetrics(a.metrics),
	)
	if err := g.Start(ctx, d); err != nil {
		return nil, err
	}
	a.registry.Track(g)
	return g, nil
}

// Durations returns the round lengths players may choose.
func (a *App) Durations() []time.Duration {
	return append([]time.Duration(nil), a.settings.Load().game.Durations...)
}

// DefaultDuration returns the round length used when none is requested.
func (a *App) DefaultDuration() time.Duration {
	return a.settings.Load().defaultDuration
}

// CountryNames returns the canonical names of every catalog entity, sorted.
func (a *App) CountryNames() []string {
	entities := a.catalog.Entities()
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return names
}

// Snapshot returns the live state of a running round.
func (a *App) Snapshot(id string) (session.Snapshot, bool) {
	return a.registry.Snapshot(id)
}

// Summary returns the summary of an ended round still in the archive.
func (a *App) Summary(id string) (session.Summary, bool) {
	return a.registry.Summary(id)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests. TLS is used when the config names a certificate.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return a.baseCtx },
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	tls := a.cfg.Server.TLS
	serveErr := make(chan error, 1)
	slog.Info("listening", "addr", ln.Addr().String(), "tls", tls.Enabled())
	go func() {
		if tls.Enabled() {
			serveErr <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdown)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a changed config. Round
// settings affect rounds started afterwards; running rounds keep theirs.
func (a *App) ApplyConfig(diff config.ConfigDiff, cfg *config.Config) {
	if diff.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(diff.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.GameChanged {
		a.storeSettings(cfg.Game)
		slog.Info("round settings reloaded",
			"durations", cfg.Game.Durations,
			"default_duration", cfg.Game.DefaultDuration,
			"window", cfg.Game.Window,
		)
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", diff.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends every running round, closes open connections and releases
// providers. If ctx expires first, the remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "active_games", a.registry.Active())

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		a.registry.StopAll()
		a.baseCancel()

		for i, closer := range a.providers.Closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.providers.Closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete", "archived", a.registry.Archived())
	})
	return shutdownErr
}
