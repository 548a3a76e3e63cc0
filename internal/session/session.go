// Package session implements the per-player game session state machine.
//
// A [Session] moves through three phases: idle, running and ended. Ended is
// terminal; a new game needs a new Session. The pipeline goroutine is the
// only writer ([Session.RecordMatches], [Session.Tick]); progress queries
// ([Session.Snapshot], [Session.Phase], [Session.Remaining]) may run
// concurrently from any goroutine and always observe a consistent state.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/countrycall/internal/catalog"
	"github.com/MrWong99/countrycall/internal/transcript/match"
)

// Phase is a session lifecycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseEnded
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// EndReason records why a session ended.
type EndReason string

const (
	EndDeadline EndReason = "deadline"
	EndStopped  EndReason = "stopped"
)

// ErrInvalidDuration is returned by [Session.Start] for a non-positive
// duration.
var ErrInvalidDuration = errors.New("session: duration must be positive")

// InvalidStateError reports an operation attempted in a phase that does not
// allow it. The session is left unchanged.
type InvalidStateError struct {
	Op    string
	Phase Phase
}

// Error implements error.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("session: %s not allowed while %s", e.Op, e.Phase)
}

// Summary is the final result of an ended session.
type Summary struct {
	SessionID string

	// Score is the number of distinct entities guessed.
	Score int

	// Guessed holds the canonical names of the guessed entities, sorted.
	Guessed []string

	// Duration is the selected game length.
	Duration time.Duration

	// Played is the time between start and end, at most Duration.
	Played time.Duration

	StartedAt time.Time
	EndedAt   time.Time
	Reason    EndReason
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	ID        string
	Phase     Phase
	Score     int
	Guessed   []string
	Duration  time.Duration
	StartedAt time.Time
	Deadline  time.Time
}

// Option is a functional option for configuring a [Session].
type Option func(*Session)

// WithClock replaces time.Now as the session's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session is one player's timed play-through. All methods are safe for
// concurrent use.
type Session struct {
	id  string
	now func() time.Time

	mu        sync.RWMutex
	phase     Phase
	duration  time.Duration
	startedAt time.Time
	deadline  time.Time
	guessed   map[string]*catalog.Entity
	summary   Summary
}

// New returns an idle session. An empty id is replaced by a random UUID.
func New(id string, opts ...Option) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		id:      id,
		now:     time.Now,
		guessed: make(map[string]*catalog.Entity),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start moves an idle session to running with deadline now+d and an empty
// guessed set. It returns [*InvalidStateError] unless the session is idle.
func (s *Session) Start(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle {
		return &InvalidStateError{Op: "start", Phase: s.phase}
	}
	if d <= 0 {
		return ErrInvalidDuration
	}
	now := s.now()
	s.phase = PhaseRunning
	s.duration = d
	s.startedAt = now
	s.deadline = now.Add(d)
	clear(s.guessed)
	return nil
}

// RecordMatches credits every entity in results that has not been guessed
// yet and returns the newly credited entities in result order. Repeat
// entities change nothing. Outside the running phase, or once the deadline
// has passed, it does nothing and returns nil.
func (s *Session) RecordMatches(results []match.Result) []*catalog.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning || !s.now().Before(s.deadline) {
		return nil
	}

	var added []*catalog.Entity
	for _, r := range results {
		if r.Entity == nil {
			continue
		}
		if _, ok := s.guessed[r.Entity.ID]; ok {
			continue
		}
		s.guessed[r.Entity.ID] = r.Entity
		added = append(added, r.Entity)
	}
	return added
}

// Tick ends a running session when now is at or past the deadline and
// returns its summary with ok == true. In every other case it returns
// ok == false.
func (s *Session) Tick(now time.Time) (sum Summary, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning || now.Before(s.deadline) {
		return Summary{}, false
	}
	return s.endLocked(now, EndDeadline), true
}

// Stop ends a running session early and returns its summary. It returns
// [*InvalidStateError] when the session is idle or already ended.
func (s *Session) Stop() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning {
		return Summary{}, &InvalidStateError{Op: "stop", Phase: s.phase}
	}
	return s.endLocked(s.now(), EndStopped), nil
}

func (s *Session) endLocked(at time.Time, reason EndReason) Summary {
	s.phase = PhaseEnded
	played := min(max(at.Sub(s.startedAt), 0), s.duration)
	s.summary = Summary{
		SessionID: s.id,
		Score:     len(s.guessed),
		Guessed:   s.guessedNamesLocked(),
		Duration:  s.duration,
		Played:    played,
		StartedAt: s.startedAt,
		EndedAt:   at,
		Reason:    reason,
	}
	return s.summaryLocked()
}

func (s *Session) summaryLocked() Summary {
	sum := s.summary
	sum.Guessed = slices.Clone(sum.Guessed)
	return sum
}

// Result returns the final summary and true once the session has ended.
func (s *Session) Result() (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase != PhaseEnded {
		return Summary{}, false
	}
	return s.summaryLocked(), true
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Score returns the number of distinct entities guessed so far.
func (s *Session) Score() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guessed)
}

// Deadline returns the time at which a running session ends. It is zero
// while idle.
func (s *Session) Deadline() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deadline
}

// Remaining returns the time left until the deadline, never negative. It is
// zero unless the session is running.
func (s *Session) Remaining(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase != PhaseRunning {
		return 0
	}
	return max(s.deadline.Sub(now), 0)
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:        s.id,
		Phase:     s.phase,
		Score:     len(s.guessed),
		Guessed:   s.guessedNamesLocked(),
		Duration:  s.duration,
		StartedAt: s.startedAt,
		Deadline:  s.deadline,
	}
}

func (s *Session) guessedNamesLocked() []string {
	names := make([]string, 0, len(s.guessed))
	for _, e := range s.guessed {
		names = append(names, e.Name)
	}
	slices.Sort(names)
	return names
}
