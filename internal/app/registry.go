package app

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/countrycall/internal/game"
	"github.com/MrWong99/countrycall/internal/session"
)

// DefaultArchiveSize is the number of ended-round summaries a [Registry]
// keeps when none is configured.
const DefaultArchiveSize = 100

// Registry tracks running games by session id and keeps the summaries of
// the most recently ended rounds. The archive lives in memory only.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	active  map[string]*game.Game
	archive map[string]session.Summary
	order   []string // archive ids, oldest first
	size    int
	wg      sync.WaitGroup
}

// NewRegistry returns a registry keeping at most size summaries. A size
// below 1 selects [DefaultArchiveSize].
func NewRegistry(size int) *Registry {
	if size < 1 {
		size = DefaultArchiveSize
	}
	return &Registry{
		active:  make(map[string]*game.Game),
		archive: make(map[string]session.Summary, size),
		size:    size,
	}
}

// Track registers g as active and moves its summary to the archive once the
// game is done.
func (r *Registry) Track(g *game.Game) {
	r.mu.Lock()
	r.active[g.ID()] = g
	r.mu.Unlock()

	r.wg.Go(func() {
		<-g.Done()
		sum, ok := g.Result()
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.active, g.ID())
		if ok {
			r.archiveLocked(sum)
		}
	})
}

func (r *Registry) archiveLocked(sum session.Summary) {
	if _, dup := r.archive[sum.SessionID]; !dup {
		r.order = append(r.order, sum.SessionID)
	}
	r.archive[sum.SessionID] = sum
	for len(r.order) > r.size {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.archive, oldest)
		slog.Debug("summary evicted from archive", "session_id", oldest)
	}
}

// Snapshot returns the live state of a tracked game.
func (r *Registry) Snapshot(id string) (session.Snapshot, bool) {
	r.mu.RLock()
	g, ok := r.active[id]
	r.mu.RUnlock()
	if !ok {
		return session.Snapshot{}, false
	}
	return g.Session().Snapshot(), true
}

// Summary returns the archived summary of an ended round.
func (r *Registry) Summary(id string) (session.Summary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum, ok := r.archive[id]
	return sum, ok
}

// Active returns the number of tracked games that have not finished.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Archived returns the number of summaries held.
func (r *Registry) Archived() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// StopAll ends every running game and waits until each has been archived.
func (r *Registry) StopAll() {
	r.mu.RLock()
	games := make([]*game.Game, 0, len(r.active))
	for _, g := range r.active {
		games = append(games, g)
	}
	r.mu.RUnlock()

	for _, g := range games {
		if _, err := g.Stop(); err != nil {
			slog.Debug("stop on shutdown", "session_id", g.ID(), "err", err)
		}
	}
	r.wg.Wait()
}
