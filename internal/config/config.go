// Package config provides the configuration schema, loader, and provider
// registry for the countrycall server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to its [slog.Level]. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Game      GameConfig      `yaml:"game"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr" env:"COUNTRYCALL_LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"COUNTRYCALL_LOG_LEVEL"`

	// TLS enables HTTPS when both paths are set.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file" env:"COUNTRYCALL_TLS_CERT_FILE"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file" env:"COUNTRYCALL_TLS_KEY_FILE"`
}

// Enabled reports whether both certificate paths are set.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// ProvidersConfig selects the speech-to-text backend and its fallbacks.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt" envPrefix:"COUNTRYCALL_STT_"`

	// STTFallbacks are tried in order when the primary fails fast or its
	// circuit is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block of a provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "deepgram").
	Name string `yaml:"name" env:"NAME"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key" env:"API_KEY"`

	// BaseURL overrides the provider's default API endpoint. For the
	// whisper provider it is the whisper.cpp server address; for
	// whisper-native it is unused (see Options["model_path"]).
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model" env:"MODEL"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// GameConfig holds round settings. Changes apply to rounds started after
// a reload.
type GameConfig struct {
	// Durations lists the round lengths a player may choose.
	Durations []time.Duration `yaml:"durations"`

	// DefaultDuration is used when a start request names no duration.
	DefaultDuration time.Duration `yaml:"default_duration"`

	// Window is the amount of new audio in each transcription window.
	Window time.Duration `yaml:"window"`

	// Overlap is repeated from the end of the previous window.
	Overlap time.Duration `yaml:"overlap"`

	// QueueCapacity bounds windows waiting for transcription.
	QueueCapacity int `yaml:"queue_capacity"`

	// TickInterval is the countdown push period.
	TickInterval time.Duration `yaml:"tick_interval"`

	// SampleRate is the rate of the 16-bit mono PCM the client sends.
	SampleRate int `yaml:"sample_rate"`

	// SilenceRMS skips windows below this RMS energy. 0 disables.
	SilenceRMS float64 `yaml:"silence_rms"`

	// Language is the transcription language hint.
	Language string `yaml:"language"`

	// Prompt is passed to providers that accept a vocabulary prompt.
	Prompt string `yaml:"prompt"`
}

// CatalogConfig selects the country list.
type CatalogConfig struct {
	// Path to a catalog file. Empty uses the embedded default list.
	Path string `yaml:"path" env:"COUNTRYCALL_CATALOG_PATH"`

	// Format is "yaml" or "text". Empty infers it from the file extension.
	Format string `yaml:"format"`
}

// MatcherConfig controls transcript matching.
type MatcherConfig struct {
	// Phonetic enables rescue of near-miss spellings of long aliases.
	Phonetic bool `yaml:"phonetic"`

	// PhoneticThreshold is the minimum Jaro-Winkler similarity for a rescue.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
}

// TelemetryConfig configures OpenTelemetry resource attributes.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`

	// OTLPEndpoint enables trace export to an OTLP/HTTP collector.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"COUNTRYCALL_OTLP_ENDPOINT"`
}

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":8000"
	DefaultWindow            = 2 * time.Second
	DefaultOverlap           = 500 * time.Millisecond
	DefaultQueueCapacity     = 2
	DefaultTickInterval      = time.Second
	DefaultSampleRate        = 16000
	DefaultLanguage          = "en"
	DefaultPhoneticThreshold = 0.92
	DefaultServiceName       = "countrycall"
)

// DefaultDurations are the round lengths offered when none are configured.
var DefaultDurations = []time.Duration{
	60 * time.Second,
	180 * time.Second,
	300 * time.Second,
	600 * time.Second,
}

// ApplyDefaults fills every unset field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	stt := &cfg.Providers.STT
	if stt.Name == "" {
		stt.Name = ProviderWhisper
	}
	if stt.Name == ProviderWhisper && stt.BaseURL == "" {
		stt.BaseURL = DefaultWhisperURL
	}

	g := &cfg.Game
	if len(g.Durations) == 0 {
		g.Durations = append([]time.Duration(nil), DefaultDurations...)
	}
	if g.DefaultDuration == 0 {
		g.DefaultDuration = g.Durations[0]
	}
	if g.Window == 0 {
		g.Window = DefaultWindow
	}
	if g.Overlap == 0 {
		g.Overlap = DefaultOverlap
	}
	if g.QueueCapacity == 0 {
		g.QueueCapacity = DefaultQueueCapacity
	}
	if g.TickInterval == 0 {
		g.TickInterval = DefaultTickInterval
	}
	if g.SampleRate == 0 {
		g.SampleRate = DefaultSampleRate
	}
	if g.Language == "" {
		g.Language = DefaultLanguage
	}

	if cfg.Matcher.PhoneticThreshold == 0 {
		cfg.Matcher.PhoneticThreshold = DefaultPhoneticThreshold
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Default returns a configuration with every default applied. It is what
// the server runs with when no config file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
