// Package config provides the configuration schema, loader, hot-reload
// watcher and oracle registry for the proofline server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
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

// Level converts l to a slog level. Unknown and empty values map to Info.
func (l LogLevel) Level() slog.Level {
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

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Fallbacks  []OracleConfig   `yaml:"fallbacks"`
	Engine     EngineConfig     `yaml:"engine"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists host patterns accepted for editor websocket
	// connections from other origins. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// ShutdownTimeout bounds graceful shutdown. Default 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// OracleConfig selects and configures one grammar oracle. Name is looked up
// in the [Registry].
type OracleConfig struct {
	// Name selects the registered oracle implementation, e.g. "websocket",
	// "openai" or "ollama".
	Name string `yaml:"name"`

	// APIKey authenticates against LLM backends.
	APIKey string `yaml:"api_key"`

	// BaseURL is the grammar service URL for "websocket" oracles and
	// overrides the API endpoint for LLM oracles.
	BaseURL string `yaml:"base_url"`

	// Model selects the LLM model.
	Model string `yaml:"model"`

	// FallbackModels are tried in order, on the same backend, when Model
	// fails.
	FallbackModels []string `yaml:"fallback_models"`

	// Timeout bounds one correction request. Zero uses the oracle default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds implementation-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Label returns a short identification of the oracle for logs.
func (o OracleConfig) Label() string {
	if o.Model != "" {
		return o.Name + "/" + o.Model
	}
	return o.Name
}

// EngineConfig holds the correction engine's timing and highlight settings.
// All of it is hot-reloadable.
type EngineConfig struct {
	// Enabled is the initial state of automatic correction for new editor
	// sessions. Default true.
	Enabled *bool `yaml:"enabled"`

	Debounce          time.Duration `yaml:"debounce"`
	Cooldown          time.Duration `yaml:"cooldown"`
	ReleaseDelay      time.Duration `yaml:"release_delay"`
	HighlightDuration time.Duration `yaml:"highlight_duration"`

	Colors ColorsConfig `yaml:"colors"`
}

// IsEnabled returns the effective Enabled value.
func (e EngineConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// ColorsConfig maps change kinds to highlight tags.
type ColorsConfig struct {
	Grammar  string `yaml:"grammar"`
	Spelling string `yaml:"spelling"`
}

// ResilienceConfig tunes the circuit breaker placed in front of every
// oracle.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported as the OpenTelemetry service.name.
	// Default "proofline".
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of correction cycles traced, in
	// [0, 1]. Zero and one both trace everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":8080"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultDebounce          = 600 * time.Millisecond
	DefaultCooldown          = 1200 * time.Millisecond
	DefaultReleaseDelay      = 200 * time.Millisecond
	DefaultHighlightDuration = time.Second
	DefaultColor             = "green"
	DefaultServiceName       = "proofline"
)

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	e := &cfg.Engine
	if e.Debounce == 0 {
		e.Debounce = DefaultDebounce
	}
	if e.Cooldown == 0 {
		e.Cooldown = DefaultCooldown
	}
	if e.ReleaseDelay == 0 {
		e.ReleaseDelay = DefaultReleaseDelay
	}
	if e.HighlightDuration == 0 {
		e.HighlightDuration = DefaultHighlightDuration
	}
	if e.Colors.Grammar == "" {
		e.Colors.Grammar = DefaultColor
	}
	if e.Colors.Spelling == "" {
		e.Colors.Spelling = e.Colors.Grammar
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}
