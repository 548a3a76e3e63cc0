package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/countrycall/internal/config"
	"github.com/MrWong99/countrycall/pkg/provider/stt"
	"github.com/MrWong99/countrycall/pkg/provider/stt/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug

providers:
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-3
  stt_fallbacks:
    - name: whisper
      base_url: http://whisper:8080

game:
  durations: [60s, 180s, 300s, 600s]
  default_duration: 180s
  window: 2s
  overlap: 500ms
  queue_capacity: 2
  tick_interval: 1s
  sample_rate: 16000
  language: en
  prompt: "Countries of the world."

catalog:
  path: /etc/countrycall/countries.yaml

matcher:
  phonetic: true
  phonetic_threshold: 0.9
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9000")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Providers.STT.Name != "deepgram" || cfg.Providers.STT.Model != "nova-3" {
		t.Errorf("providers.stt: got %+v", cfg.Providers.STT)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].BaseURL != "http://whisper:8080" {
		t.Errorf("providers.stt_fallbacks: got %+v", cfg.Providers.STTFallbacks)
	}
	if len(cfg.Game.Durations) != 4 || cfg.Game.Durations[3] != 10*time.Minute {
		t.Errorf("game.durations: got %v", cfg.Game.Durations)
	}
	if cfg.Game.DefaultDuration != 3*time.Minute {
		t.Errorf("game.default_duration: got %v", cfg.Game.DefaultDuration)
	}
	if cfg.Game.Overlap != 500*time.Millisecond {
		t.Errorf("game.overlap: got %v", cfg.Game.Overlap)
	}
	if !cfg.Matcher.Phonetic || cfg.Matcher.PhoneticThreshold != 0.9 {
		t.Errorf("matcher: got %+v", cfg.Matcher)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): %v", doc, err)
		}
		if cfg.Server.ListenAddr != config.DefaultListenAddr {
			t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
		}
		if cfg.Providers.STT.Name != config.ProviderWhisper || cfg.Providers.STT.BaseURL != config.DefaultWhisperURL {
			t.Errorf("stt: got %+v", cfg.Providers.STT)
		}
		if cfg.Game.Window != 2*time.Second || cfg.Game.Overlap != 500*time.Millisecond {
			t.Errorf("window/overlap: got %v/%v", cfg.Game.Window, cfg.Game.Overlap)
		}
		if cfg.Game.QueueCapacity != 2 || cfg.Game.TickInterval != time.Second {
			t.Errorf("queue/tick: got %d/%v", cfg.Game.QueueCapacity, cfg.Game.TickInterval)
		}
		if cfg.Game.DefaultDuration != time.Minute || len(cfg.Game.Durations) != 4 {
			t.Errorf("durations: got %v default %v", cfg.Game.Durations, cfg.Game.DefaultDuration)
		}
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("npcs: []\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\n",
			wantErr: "log_level",
		},
		{
			name:    "tls needs both files",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: "server.tls",
		},
		{
			name:    "deepgram needs api key",
			yaml:    "providers:\n  stt:\n    name: deepgram\n",
			wantErr: "api_key",
		},
		{
			name:    "native whisper needs model path",
			yaml:    "providers:\n  stt:\n    name: whisper-native\n",
			wantErr: "model_path",
		},
		{
			name:    "fallback needs name",
			yaml:    "providers:\n  stt_fallbacks:\n    - model: whisper-1\n",
			wantErr: "stt_fallbacks[0].name",
		},
		{
			name:    "otlp endpoint must be a url",
			yaml:    "telemetry:\n  otlp_endpoint: localhost:4318\n",
			wantErr: "otlp_endpoint",
		},
		{
			name:    "duplicate duration",
			yaml:    "game:\n  durations: [60s, 60s]\n",
			wantErr: "duplicate",
		},
		{
			name:    "default duration not offered",
			yaml:    "game:\n  durations: [60s]\n  default_duration: 90s\n",
			wantErr: "default_duration",
		},
		{
			name:    "overlap not shorter than window",
			yaml:    "game:\n  window: 1s\n  overlap: 1s\n",
			wantErr: "overlap",
		},
		{
			name:    "sample rate out of range",
			yaml:    "game:\n  sample_rate: 4000\n",
			wantErr: "sample_rate",
		},
		{
			name:    "unknown catalog format",
			yaml:    "catalog:\n  format: csv\n",
			wantErr: "catalog.format",
		},
		{
			name:    "threshold out of range",
			yaml:    "matcher:\n  phonetic_threshold: 1.5\n",
			wantErr: "phonetic_threshold",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
game:
  sample_rate: 1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	yaml := "providers:\n  stt:\n    name: my-custom-engine\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownSTT(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_RegisteredSTT(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &mock.Transcriber{}
	var gotEntry config.ProviderEntry
	reg.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Transcriber, error) {
		gotEntry = e
		return want, nil
	})

	got, err := reg.CreateSTT(config.ProviderEntry{Name: "mock", Model: "tiny"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("factory result not returned")
	}
	if gotEntry.Model != "tiny" {
		t.Errorf("factory got entry %+v", gotEntry)
	}
	if names := reg.STTNames(); len(names) != 1 || names[0] != "mock" {
		t.Errorf("STTNames = %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Transcriber, error) {
		return nil, boom
	})
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}
