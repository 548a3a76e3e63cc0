package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/countrycall/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.STT.Options = map[string]any{"threads": 4}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.GameChanged || len(d.RestartRequired) != 0 {
		t.Errorf("unexpected extra changes: %+v", d)
	}
}

func TestDiff_GameChanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.GameConfig)
	}{
		{"durations", func(g *config.GameConfig) { g.Durations = append(g.Durations, 20*time.Minute) }},
		{"window", func(g *config.GameConfig) { g.Window = 3 * time.Second }},
		{"tick", func(g *config.GameConfig) { g.TickInterval = 500 * time.Millisecond }},
		{"prompt", func(g *config.GameConfig) { g.Prompt = "Name countries." }},
		{"default duration", func(g *config.GameConfig) { g.DefaultDuration = 3 * time.Minute }},
		{"overlap", func(g *config.GameConfig) { g.Overlap = time.Second }},
		{"queue capacity", func(g *config.GameConfig) { g.QueueCapacity = 4 }},
		{"sample rate", func(g *config.GameConfig) { g.SampleRate = 48000 }},
		{"silence", func(g *config.GameConfig) { g.SilenceRMS = 0.01 }},
		{"language", func(g *config.GameConfig) { g.Language = "de" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := config.Default(), config.Default()
			tt.mutate(&new.Game)
			d := config.Diff(old, new)
			if !d.GameChanged {
				t.Error("expected GameChanged=true")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("game change should not require restart: %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Server.ListenAddr = ":9999"
	new.Providers.STT.Model = "large-v3"
	new.Catalog.Path = "countries.txt"
	new.Matcher.Phonetic = true

	d := config.Diff(old, new)
	want := []string{"server", "providers", "catalog", "matcher"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.Empty() {
		t.Error("diff should not be empty")
	}
}

func TestDiff_ProviderOptionChanged(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	old.Providers.STT.Options = map[string]any{"threads": 4}
	new.Providers.STT.Options = map[string]any{"threads": 8}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "providers") {
		t.Errorf("RestartRequired = %v, want providers", d.RestartRequired)
	}
}

func TestDiff_GameDurationsCopiedIsUnchanged(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Game.Durations = slices.Clone(old.Game.Durations)

	if d := config.Diff(old, new); d.GameChanged {
		t.Errorf("equal durations in a distinct slice reported as changed: %+v", d)
	}
}
