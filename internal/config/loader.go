package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// STT provider names understood by the server.
const (
	ProviderWhisper       = "whisper"
	ProviderWhisperNative = "whisper-native"
	ProviderDeepgram      = "deepgram"
	ProviderOpenAI        = "openai"
)

// ValidSTTProviders lists known STT provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidSTTProviders = []string{ProviderWhisper, ProviderWhisperNative, ProviderDeepgram, ProviderOpenAI}

// DefaultWhisperURL is the address of a locally running whisper.cpp server,
// used when no STT provider is configured.
const DefaultWhisperURL = "http://127.0.0.1:8080"

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. An empty document
// yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields of cfg that have a matching COUNTRYCALL_*
// environment variable set. Unset variables leave the field untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	tls := cfg.Server.TLS
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	} else {
		errs = append(errs, validateSTTEntry("providers.stt", cfg.Providers.STT)...)
	}
	for i, fb := range cfg.Providers.STTFallbacks {
		prefix := fmt.Sprintf("providers.stt_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateSTTEntry(prefix, fb)...)
	}

	// Game
	g := cfg.Game
	seen := make(map[int64]bool, len(g.Durations))
	for i, d := range g.Durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("game.durations[%d] %s must be positive", i, d))
		}
		if seen[int64(d)] {
			errs = append(errs, fmt.Errorf("game.durations[%d] %s is a duplicate", i, d))
		}
		seen[int64(d)] = true
	}
	if g.DefaultDuration != 0 && len(g.Durations) > 0 && !slices.Contains(g.Durations, g.DefaultDuration) {
		errs = append(errs, fmt.Errorf("game.default_duration %s is not one of game.durations", g.DefaultDuration))
	}
	if g.Window < 0 {
		errs = append(errs, fmt.Errorf("game.window %s must be positive", g.Window))
	}
	if g.Overlap < 0 || (g.Window > 0 && g.Overlap >= g.Window) {
		errs = append(errs, fmt.Errorf("game.overlap %s must be non-negative and shorter than game.window", g.Overlap))
	}
	if g.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("game.queue_capacity %d must be at least 1", g.QueueCapacity))
	}
	if g.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("game.tick_interval %s must be positive", g.TickInterval))
	}
	if g.SampleRate != 0 && (g.SampleRate < 8000 || g.SampleRate > 48000) {
		errs = append(errs, fmt.Errorf("game.sample_rate %d is out of range [8000, 48000]", g.SampleRate))
	}
	if g.SilenceRMS < 0 || g.SilenceRMS > 1 {
		errs = append(errs, fmt.Errorf("game.silence_rms %.3f is out of range [0, 1]", g.SilenceRMS))
	}

	// Catalog
	switch cfg.Catalog.Format {
	case "", "yaml", "text":
	default:
		errs = append(errs, fmt.Errorf("catalog.format %q is invalid; valid values: yaml, text", cfg.Catalog.Format))
	}
	if cfg.Catalog.Format != "" && cfg.Catalog.Path == "" {
		slog.Warn("catalog.format is set but catalog.path is empty; using the embedded catalog")
	}

	// Matcher
	if t := cfg.Matcher.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matcher.phonetic_threshold %.2f is out of range [0, 1]", t))
	}

	// Telemetry
	if ep := cfg.Telemetry.OTLPEndpoint; ep != "" {
		if u, err := url.Parse(ep); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("telemetry.otlp_endpoint %q must be an http(s) URL", ep))
		}
	}

	return errors.Join(errs...)
}

func validateSTTEntry(prefix string, e ProviderEntry) []error {
	var errs []error
	if !slices.Contains(ValidSTTProviders, e.Name) {
		slog.Warn("unknown provider name; may be a typo or a third-party provider",
			"kind", "stt",
			"name", e.Name,
			"known", ValidSTTProviders,
		)
		return nil
	}
	switch e.Name {
	case ProviderWhisper:
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for %s", prefix, e.Name))
		}
	case ProviderWhisperNative:
		if p, _ := e.Options["model_path"].(string); p == "" {
			errs = append(errs, fmt.Errorf("%s.options.model_path is required for %s", prefix, e.Name))
		}
	case ProviderDeepgram, ProviderOpenAI:
		if e.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for %s", prefix, e.Name))
		}
	}
	return errs
}
