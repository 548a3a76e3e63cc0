package app

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/countrycall/internal/catalog"
	"github.com/MrWong99/countrycall/internal/game"
	"github.com/MrWong99/countrycall/internal/transcript/match"
	sttmock "github.com/MrWong99/countrycall/pkg/provider/stt/mock"
)

func startedGame(t *testing.T) *game.Game {
	t.Helper()
	cat, err := catalog.New([]catalog.Definition{{Name: "France"}})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	cfg := game.DefaultConfig()
	cfg.TickInterval = time.Hour
	g := game.New(match.New(cat), &sttmock.Transcriber{}, nil, game.WithConfig(cfg))
	if err := g.Start(context.Background(), time.Minute); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return g
}

func TestRegistry_ArchiveEvictsOldest(t *testing.T) {
	t.Parallel()

	r := NewRegistry(2)
	var ids []string
	for range 3 {
		g := startedGame(t)
		r.Track(g)
		if _, ok := r.Snapshot(g.ID()); !ok {
			t.Fatalf("game %s not tracked", g.ID())
		}
		if _, err := g.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		deadline := time.Now().Add(3 * time.Second)
		for r.Active() != 0 {
			if time.Now().After(deadline) {
				t.Fatal("stopped game was not archived")
			}
			time.Sleep(5 * time.Millisecond)
		}
		ids = append(ids, g.ID())
	}

	if r.Archived() != 2 {
		t.Fatalf("archived = %d, want 2", r.Archived())
	}
	if _, ok := r.Summary(ids[0]); ok {
		t.Error("oldest summary was not evicted")
	}
	for _, id := range ids[1:] {
		sum, ok := r.Summary(id)
		if !ok {
			t.Errorf("summary %s missing", id)
			continue
		}
		if sum.SessionID != id {
			t.Errorf("summary id = %s, want %s", sum.SessionID, id)
		}
	}
	if r.Active() != 0 {
		t.Errorf("active = %d, want 0", r.Active())
	}
}

func TestRegistry_StopAll(t *testing.T) {
	t.Parallel()

	r := NewRegistry(0)
	g1, g2 := startedGame(t), startedGame(t)
	r.Track(g1)
	r.Track(g2)
	if r.Active() != 2 {
		t.Fatalf("active = %d, want 2", r.Active())
	}

	r.StopAll()

	if r.Active() != 0 {
		t.Errorf("active = %d after StopAll, want 0", r.Active())
	}
	for _, g := range []*game.Game{g1, g2} {
		if _, ok := r.Summary(g.ID()); !ok {
			t.Errorf("summary of %s not archived", g.ID())
		}
	}
}

func TestRegistry_UnknownID(t *testing.T) {
	t.Parallel()

	r := NewRegistry(DefaultArchiveSize)
	if _, ok := r.Snapshot("nope"); ok {
		t.Error("Snapshot found an unknown id")
	}
	if _, ok := r.Summary("nope"); ok {
		t.Error("Summary found an unknown id")
	}
}
