package game

import (
	"context"
	"time"

	"github.com/MrWong99/countrycall/internal/session"
)

// EventType identifies an [Event].
type EventType string

const (
	EventStarted EventType = "started"
	EventHeard   EventType = "heard"
	EventMatch   EventType = "match"
	EventTick    EventType = "tick"
	EventEnded   EventType = "ended"
)

// Event is one entry of a game's push feed. Only the fields relevant to
// Type are set.
type Event struct {
	Type      EventType
	SessionID string

	// EventStarted.
	Duration time.Duration
	Deadline time.Time

	// EventHeard: the raw transcript of one audio window.
	Text string

	// EventMatch: canonical names of newly credited entities and the score
	// after crediting them.
	Entities []string
	Score    int

	// EventTick.
	Remaining time.Duration

	// EventEnded.
	Summary *session.Summary
}

// Sink receives a game's events in order. Emit is called from the game's
// goroutines and should return quickly.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, ev Event)

// Emit implements [Sink].
func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

type discardSink struct{}

func (discardSink) Emit(context.Context, Event) {}
