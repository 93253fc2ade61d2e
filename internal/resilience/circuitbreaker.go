// Package resilience provides circuit breaker and failover primitives for the
// grammar oracle.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open). While
// open it fails calls immediately, so an unreachable grammar service costs the
// editor nothing but a skipped correction. [FallbackGroup] composes several
// instances of the same collaborator, each behind its own breaker, and
// [OracleFallback] and [LLMFallback] apply it to oracles and LLM providers.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again, and the number of concurrent probes allowed. Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker unlocked and must not block.
	OnStateChange func(name string, from, to State)

	// IsFailure decides whether an error counts against the breaker. The
	// default ignores context.Canceled, which signals a caller that went
	// away rather than a broken dependency.
	IsFailure func(error) bool

	// Logger receives transition logs. Default: slog.Default().
	Logger *slog.Logger
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	isFailure    func(error) bool
	log          *slog.Logger
	now          func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFail  int
	openedAt         time.Time
	halfOpenInFlight int
	halfOpenOK       int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		isFailure:    cfg.IsFailure,
		log:          cfg.Logger,
		now:          time.Now,
		state:        StateClosed,
	}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	var changes []transition
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		changes = append(changes, cb.setState(StateHalfOpen))
		cb.halfOpenInFlight = 0
		cb.halfOpenOK = 0
	}
	probe := cb.state == StateHalfOpen
	if probe {
		if cb.halfOpenInFlight+cb.halfOpenOK >= cb.halfOpenMax {
			cb.mu.Unlock()
			cb.notify(changes)
			return ErrCircuitOpen
		}
		cb.halfOpenInFlight++
	}
	cb.mu.Unlock()
	cb.notify(changes)

	err := fn()

	cb.mu.Lock()
	var t transition
	switch {
	case err != nil && cb.isFailure(err):
		t = cb.recordFailure(probe)
	case err != nil:
		// Not the dependency's fault; release the probe slot only.
		if probe && cb.state == StateHalfOpen {
			cb.halfOpenInFlight--
		}
	default:
		t = cb.recordSuccess(probe)
	}
	cb.mu.Unlock()
	cb.notify([]transition{t})
	return err
}

type transition struct {
	from, to State
}

// setState changes state and returns the transition. cb.mu must be held.
func (cb *CircuitBreaker) setState(to State) transition {
	from := cb.state
	cb.state = to
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	return transition{from: from, to: to}
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probe bool) transition {
	if probe {
		if cb.state != StateHalfOpen {
			return transition{}
		}
		cb.halfOpenInFlight--
		cb.consecutiveFail = cb.maxFailures
		return cb.setState(StateOpen)
	}
	if cb.state != StateClosed {
		return transition{}
	}
	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures {
		return cb.setState(StateOpen)
	}
	return transition{}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probe bool) transition {
	if !probe {
		if cb.state == StateClosed {
			cb.consecutiveFail = 0
		}
		return transition{}
	}
	if cb.state != StateHalfOpen {
		return transition{}
	}
	cb.halfOpenInFlight--
	cb.halfOpenOK++
	if cb.halfOpenOK >= cb.halfOpenMax {
		cb.consecutiveFail = 0
		cb.halfOpenOK = 0
		return cb.setState(StateClosed)
	}
	return transition{}
}

// notify logs transitions and calls OnStateChange. cb.mu must not be held.
func (cb *CircuitBreaker) notify(ts []transition) {
	for _, t := range ts {
		if t.from == t.to {
			continue
		}
		switch t.to {
		case StateOpen:
			cb.log.Warn("circuit breaker opened", "name", cb.name, "from", t.from.String())
		default:
			cb.log.Info("circuit breaker state changed", "name", cb.name, "from", t.from.String(), "to", t.to.String())
		}
		if cb.onChange != nil {
			cb.onChange(cb.name, t.from, t.to)
		}
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.setState(StateClosed)
	cb.consecutiveFail = 0
	cb.halfOpenInFlight = 0
	cb.halfOpenOK = 0
	cb.mu.Unlock()
	cb.notify([]transition{t})
}
