package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/proofline/internal/config"
	"github.com/MrWong99/proofline/internal/observe"
	"github.com/MrWong99/proofline/internal/resilience"
	"github.com/MrWong99/proofline/pkg/oracle"
	"github.com/MrWong99/proofline/pkg/oracle/llmoracle"
	"github.com/MrWong99/proofline/pkg/oracle/wsoracle"
	"github.com/MrWong99/proofline/pkg/provider/llm"
	"github.com/MrWong99/proofline/pkg/provider/llm/anyllm"
	"github.com/MrWong99/proofline/pkg/provider/llm/openai"
)

// RegisterBuiltinOracles wires every oracle implementation that ships with
// Proofline into reg. fb configures the breakers placed between an LLM
// oracle's model and its fallback_models.
func RegisterBuiltinOracles(reg *config.Registry, fb resilience.FallbackConfig) {
	reg.RegisterOracle("identity", func(config.OracleConfig) (oracle.Oracle, error) {
		return namedOracle{Oracle: oracle.Identity, name: "identity"}, nil
	})

	reg.RegisterOracle("websocket", func(entry config.OracleConfig) (oracle.Oracle, error) {
		opts := []wsoracle.Option{wsoracle.WithName(entry.Label())}
		if entry.Timeout > 0 {
			opts = append(opts, wsoracle.WithTimeout(entry.Timeout))
		}
		if n, ok := optInt(entry.Options, "reconnect_attempts"); ok {
			delay := optDuration(entry.Options, "reconnect_delay", time.Second)
			maxDelay := optDuration(entry.Options, "reconnect_max_delay", 10*time.Second)
			opts = append(opts, wsoracle.WithReconnect(n, delay, maxDelay))
		}
		if headers, ok := entry.Options["headers"].(map[string]any); ok {
			for k, v := range headers {
				if s, ok := v.(string); ok {
					opts = append(opts, wsoracle.WithHeader(k, s))
				}
			}
		}
		return wsoracle.New(entry.BaseURL, opts...)
	})

	reg.RegisterOracle("openai", func(entry config.OracleConfig) (oracle.Oracle, error) {
		return newLLMOracle(entry, fb, func(model string) (llm.Provider, error) {
			var opts []openai.Option
			if entry.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(entry.BaseURL))
			}
			if org := optString(entry.Options, "organization"); org != "" {
				opts = append(opts, openai.WithOrganization(org))
			}
			if entry.Timeout > 0 {
				opts = append(opts, openai.WithTimeout(entry.Timeout))
			}
			if n, ok := optInt(entry.Options, "max_retries"); ok {
				opts = append(opts, openai.WithMaxRetries(n))
			}
			return openai.New(entry.APIKey, model, opts...)
		})
	})

	// "openai" stays on the native SDK registered above.
	for _, vendor := range anyllm.Vendors() {
		if vendor == "openai" {
			continue
		}
		reg.RegisterOracle(vendor, func(entry config.OracleConfig) (oracle.Oracle, error) {
			return newLLMOracle(entry, fb, func(model string) (llm.Provider, error) {
				var opts []anyllmlib.Option
				if entry.APIKey != "" {
					opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
				}
				if entry.BaseURL != "" {
					opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
				}
				return anyllm.New(vendor, model, opts...)
			})
		})
	}

	slog.Debug("registered oracles", "names", reg.Names())
}

// newLLMOracle builds an llmoracle over entry.Model, falling back to
// entry.FallbackModels on the same backend.
func newLLMOracle(entry config.OracleConfig, fb resilience.FallbackConfig, build func(model string) (llm.Provider, error)) (oracle.Oracle, error) {
	primary, err := build(entry.Model)
	if err != nil {
		return nil, err
	}
	var provider llm.Provider = primary
	if len(entry.FallbackModels) > 0 {
		group := resilience.NewLLMFallback(primary, entry.Model, fb)
		for _, model := range entry.FallbackModels {
			p, err := build(model)
			if err != nil {
				return nil, fmt.Errorf("fallback model %q: %w", model, err)
			}
			group.AddFallback(model, p)
		}
		provider = group
	}

	opts := []llmoracle.Option{llmoracle.WithName(entry.Label())}
	if t, ok := optFloat(entry.Options, "temperature"); ok {
		opts = append(opts, llmoracle.WithTemperature(t))
	}
	if f, ok := optFloat(entry.Options, "min_overlap"); ok {
		opts = append(opts, llmoracle.WithMinOverlap(f))
	}
	if optBool(entry.Options, "strict") {
		opts = append(opts, llmoracle.WithStrict())
	}

	var o oracle.Oracle = llmoracle.New(provider, opts...)
	if entry.Timeout > 0 {
		o = timeoutOracle{Oracle: o, name: entry.Label(), timeout: entry.Timeout}
	}
	return o, nil
}

// BuildOracle creates the configured oracle and its fallbacks and puts them
// behind circuit breakers. Breaker transitions are counted in m. The
// returned closers release oracles that hold connections.
func BuildOracle(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*resilience.OracleFallback, []func() error, error) {
	var closers []func() error
	create := func(entry config.OracleConfig) (oracle.Oracle, error) {
		o, err := reg.CreateOracle(entry)
		if err != nil {
			return nil, err
		}
		if c, ok := o.(io.Closer); ok {
			closers = append(closers, c.Close)
		}
		return o, nil
	}

	primary, err := create(cfg.Oracle)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("oracle created", "name", cfg.Oracle.Label())

	group := resilience.NewOracleFallback(primary, breakerConfig(cfg.Resilience, m))
	for _, entry := range cfg.Fallbacks {
		o, err := create(entry)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, fmt.Errorf("fallback %q: %w", entry.Label(), err)
		}
		group.AddFallback(o)
		slog.Info("fallback oracle created", "name", entry.Label())
	}
	return group, closers, nil
}

// breakerConfig translates the resilience block into breaker settings.
func breakerConfig(rc config.ResilienceConfig, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  rc.MaxFailures,
			ResetTimeout: rc.ResetTimeout,
			HalfOpenMax:  rc.HalfOpenMax,
			OnStateChange: func(name string, _, to resilience.State) {
				if m != nil {
					m.RecordBreakerTransition(context.Background(), name, to.String())
				}
			},
		},
	}
}

// namedOracle attaches a name to an anonymous oracle.
type namedOracle struct {
	oracle.Oracle
	name string
}

func (n namedOracle) Name() string { return n.name }

// timeoutOracle bounds every call of the wrapped oracle.
type timeoutOracle struct {
	oracle.Oracle
	name    string
	timeout time.Duration
}

func (t timeoutOracle) Name() string { return t.name }

func (t timeoutOracle) Correct(ctx context.Context, sentence string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Oracle.Correct(ctx, sentence)
}

// ── Option helpers ────────────────────────────────────────────────────────────

// optString extracts a string value from an oracle Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

func optBool(opts map[string]any, key string) bool {
	b, _ := opts[key].(bool)
	return b
}

// optFloat accepts YAML floats and integers.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// optDuration parses a duration string such as "500ms", returning def when
// the key is absent or malformed.
func optDuration(opts map[string]any, key string, def time.Duration) time.Duration {
	s, ok := opts[key].(string)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
