package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GameChanged is true when any round setting changed. New settings
	// apply to rounds started afterwards; running rounds keep theirs.
	GameChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart (listen address, providers, catalog, matcher).
	RestartRequired []string
}

// Empty reports whether d records no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.GameChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.GameChanged = !gameEqual(old.Game, new.Game)

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.TLS != new.Server.TLS {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Catalog != new.Catalog {
		d.RestartRequired = append(d.RestartRequired, "catalog")
	}
	if old.Matcher != new.Matcher {
		d.RestartRequired = append(d.RestartRequired, "matcher")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

func gameEqual(a, b GameConfig) bool {
	return slices.Equal(a.Durations, b.Durations) &&
		a.DefaultDuration == b.DefaultDuration &&
		a.Window == b.Window &&
		a.Overlap == b.Overlap &&
		a.QueueCapacity == b.QueueCapacity &&
		a.TickInterval == b.TickInterval &&
		a.SampleRate == b.SampleRate &&
		a.SilenceRMS == b.SilenceRMS &&
		a.Language == b.Language &&
		a.Prompt == b.Prompt
}

func providersEqual(a, b ProvidersConfig) bool {
	return slices.EqualFunc(
		append([]ProviderEntry{a.STT}, a.STTFallbacks...),
		append([]ProviderEntry{b.STT}, b.STTFallbacks...),
		entryEqual,
	)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || !scalarEqual(v, w) {
			return false
		}
	}
	return true
}

// scalarEqual compares option values. Non-comparable values (nested maps or
// lists) are treated as changed.
func scalarEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
