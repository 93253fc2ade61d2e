package resilience

import (
	"context"

	"github.com/MrWong99/proofline/pkg/oracle"
)

// OracleFallback implements [oracle.Oracle] over several oracles, each behind
// its own circuit breaker. With a single entry it is simply a breaker around
// that oracle.
type OracleFallback struct {
	group *FallbackGroup[oracle.Oracle]
}

var (
	_ oracle.Oracle = (*OracleFallback)(nil)
	_ oracle.Named  = (*OracleFallback)(nil)
)

// NewOracleFallback wraps primary. Its name is taken from [oracle.NameOf].
func NewOracleFallback(primary oracle.Oracle, cfg FallbackConfig) *OracleFallback {
	return &OracleFallback{group: NewFallbackGroup(primary, oracle.NameOf(primary), cfg)}
}

// AddFallback registers o to be tried after the oracles added before it.
func (f *OracleFallback) AddFallback(o oracle.Oracle) {
	f.group.AddFallback(oracle.NameOf(o), o)
}

// Name reports the primary's name.
func (f *OracleFallback) Name() string {
	name, _ := f.group.Primary()
	return name
}

// Primary returns the first oracle.
func (f *OracleFallback) Primary() oracle.Oracle {
	_, o := f.group.Primary()
	return o
}

// Correct asks the first oracle whose breaker admits the call.
func (f *OracleFallback) Correct(ctx context.Context, sentence string) (string, error) {
	return ExecuteWithResult(f.group, func(o oracle.Oracle) (string, error) {
		return o.Correct(ctx, sentence)
	})
}

// States returns the breaker state per oracle name.
func (f *OracleFallback) States() map[string]State {
	return f.group.States()
}
