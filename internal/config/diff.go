package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EngineChanged is set when any engine timing, color or the default
	// enabled state changed. Engines accept the new values live.
	EngineChanged bool
	NewEngine     EngineConfig

	// OracleChanged and ResilienceChanged cover settings that are only read
	// at startup.
	OracleChanged     bool
	ResilienceChanged bool

	// ListenChanged is set when the listen address or TLS setup changed.
	ListenChanged bool
}

// RequiresRestart reports whether d contains changes that cannot be applied
// to a running server.
func (d ConfigDiff) RequiresRestart() bool {
	return d.OracleChanged || d.ResilienceChanged || d.ListenChanged
}

// Empty reports whether nothing relevant changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.EngineChanged && !d.RequiresRestart()
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !engineEqual(old.Engine, new.Engine) {
		d.EngineChanged = true
		d.NewEngine = new.Engine
	}

	if !oracleEqual(old.Oracle, new.Oracle) || len(old.Fallbacks) != len(new.Fallbacks) {
		d.OracleChanged = true
	} else {
		for i := range old.Fallbacks {
			if !oracleEqual(old.Fallbacks[i], new.Fallbacks[i]) {
				d.OracleChanged = true
				break
			}
		}
	}

	d.ResilienceChanged = old.Resilience != new.Resilience

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.ListenChanged = true
	}

	return d
}

func engineEqual(a, b EngineConfig) bool {
	return a.IsEnabled() == b.IsEnabled() &&
		a.Debounce == b.Debounce &&
		a.Cooldown == b.Cooldown &&
		a.ReleaseDelay == b.ReleaseDelay &&
		a.HighlightDuration == b.HighlightDuration &&
		a.Colors == b.Colors
}

func oracleEqual(a, b OracleConfig) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		a.Timeout == b.Timeout &&
		slices.Equal(a.FallbackModels, b.FallbackModels) &&
		maps.EqualFunc(a.Options, b.Options, func(x, y any) bool { return reflect.DeepEqual(x, y) })
}
