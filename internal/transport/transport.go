// Package transport exposes the game to players over HTTP.
//
// GET /ws upgrades to a WebSocket. Binary frames carry 16-bit little-endian
// mono PCM audio, text frames carry JSON control messages:
//
//	{"type":"start","duration":"60s"}
//	{"type":"stop"}
//
// The server pushes each game event as a JSON text frame
// ({"event":"match","entities":["France"],"score":3}) plus
// {"event":"error","message":...} for rejected control messages. Closing
// the connection stops a running round.
//
// A small read-only JSON API serves the catalog, the allowed round lengths
// and per-round progress.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrWong99/countrycall/internal/game"
	"github.com/MrWong99/countrycall/internal/session"
)

const (
	defaultWriteTimeout = 5 * time.Second

	// defaultReadLimit bounds one frame: 1 MiB is about 32 s of 16 kHz audio.
	defaultReadLimit = 1 << 20
)

// Backend is what the transport needs from the application.
type Backend interface {
	// StartGame starts a round pushing events to sink. A zero d selects
	// the default duration. The round stops when ctx is cancelled.
	StartGame(ctx context.Context, sink game.Sink, d time.Duration) (*game.Game, error)

	Durations() []time.Duration
	DefaultDuration() time.Duration
	CountryNames() []string

	Snapshot(id string) (session.Snapshot, bool)
	Summary(id string) (session.Summary, bool)
}

// Handler serves the WebSocket endpoint and the JSON API.
type Handler struct {
	backend        Backend
	writeTimeout   time.Duration
	readLimit      int64
	originPatterns []string
	now            func() time.Time
}

// Option is a functional option for configuring a [Handler].
type Option func(*Handler)

// WithWriteTimeout bounds each event write. Default: 5 s.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithReadLimit sets the largest accepted frame in bytes. Default: 1 MiB.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithOriginPatterns allows cross-origin WebSocket upgrades from hosts
// matching the given patterns (see websocket.AcceptOptions).
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) {
		h.originPatterns = append(h.originPatterns, patterns...)
	}
}

// WithClock replaces time.Now when computing remaining time.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// New creates a Handler for backend.
func New(backend Backend, opts ...Option) *Handler {
	h := &Handler{
		backend:      backend,
		writeTimeout: defaultWriteTimeout,
		readLimit:    defaultReadLimit,
		now:          time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the transport routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /api/catalog", h.Catalog)
	mux.HandleFunc("GET /api/durations", h.Durations)
	mux.HandleFunc("GET /api/sessions/{id}", h.Session)
}

type catalogResponse struct {
	Count     int      `json:"count"`
	Countries []string `json:"countries"`
}

// Catalog lists the canonical name of every guessable country.
func (h *Handler) Catalog(w http.ResponseWriter, _ *http.Request) {
	names := h.backend.CountryNames()
	writeJSON(w, http.StatusOK, catalogResponse{Count: len(names), Countries: names})
}

type durationsResponse struct {
	Durations []float64 `json:"durations"`
	Default   float64   `json:"default"`
}

// Durations lists the allowed round lengths in seconds.
func (h *Handler) Durations(w http.ResponseWriter, _ *http.Request) {
	ds := h.backend.Durations()
	secs := make([]float64, len(ds))
	for i, d := range ds {
		secs[i] = d.Seconds()
	}
	writeJSON(w, http.StatusOK, durationsResponse{
		Durations: secs,
		Default:   h.backend.DefaultDuration().Seconds(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// Session reports a round's progress: live while running, the archived
// summary once ended.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if sum, ok := h.backend.Summary(id); ok {
		writeJSON(w, http.StatusOK, summaryView(sum))
		return
	}
	if snap, ok := h.backend.Snapshot(id); ok {
		writeJSON(w, http.StatusOK, snapshotView(snap, h.now()))
		return
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}
