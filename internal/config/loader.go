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

	"gopkg.in/yaml.v3"
)

// ValidOracleNames lists the oracle names known to the server. [Validate]
// warns about others, which may come from third-party registrations.
var ValidOracleNames = []string{
	"websocket", "openai", "anthropic", "ollama", "gemini", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile", "identity",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %v must not be negative", cfg.Server.ShutdownTimeout))
	}

	if cfg.Oracle.Name == "" {
		errs = append(errs, errors.New("oracle.name is required"))
	} else {
		errs = append(errs, validateOracle("oracle", cfg.Oracle)...)
	}
	for i, fb := range cfg.Fallbacks {
		prefix := fmt.Sprintf("fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateOracle(prefix, fb)...)
	}

	e := cfg.Engine
	for _, d := range []struct {
		name string
		v    int64
	}{
		{"engine.debounce", int64(e.Debounce)},
		{"engine.cooldown", int64(e.Cooldown)},
		{"engine.release_delay", int64(e.ReleaseDelay)},
		{"engine.highlight_duration", int64(e.HighlightDuration)},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}

	r := cfg.Resilience
	if r.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", r.MaxFailures))
	}
	if r.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must not be negative", r.HalfOpenMax))
	}
	if r.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %v must not be negative", r.ResetTimeout))
	}

	if sr := cfg.Telemetry.TraceSampleRatio; sr < 0 || sr > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %v must be between 0 and 1", sr))
	}

	return errors.Join(errs...)
}

func validateOracle(prefix string, o OracleConfig) []error {
	var errs []error
	if !slices.Contains(ValidOracleNames, o.Name) {
		slog.Warn("unknown oracle name; may be a typo or a third-party oracle",
			"field", prefix+".name",
			"name", o.Name,
			"known", ValidOracleNames,
		)
	}
	if o.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout %v must not be negative", prefix, o.Timeout))
	}

	switch o.Name {
	case "websocket":
		if o.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the websocket oracle", prefix))
			break
		}
		u, err := url.Parse(o.BaseURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("%s.base_url %q must be a ws:// or wss:// URL", prefix, o.BaseURL))
		}
	case "identity":
	default:
		if o.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required for LLM oracle %q", prefix, o.Name))
		}
	}
	return errs
}
