package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/proofline/pkg/oracle"
)

// ErrOracleNotRegistered is returned by [Registry.CreateOracle] when no
// factory has been registered under the requested name.
var ErrOracleNotRegistered = errors.New("config: oracle not registered")

// OracleFactory builds an oracle from its configuration block.
type OracleFactory func(OracleConfig) (oracle.Oracle, error)

// Registry maps oracle names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	oracles map[string]OracleFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{oracles: make(map[string]OracleFactory)}
}

// RegisterOracle registers factory under name. Registering a name again
// replaces the previous factory.
func (r *Registry) RegisterOracle(name string, factory OracleFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracles[name] = factory
}

// CreateOracle instantiates the oracle registered under entry.Name.
func (r *Registry) CreateOracle(entry OracleConfig) (oracle.Oracle, error) {
	r.mu.RLock()
	factory, ok := r.oracles[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOracleNotRegistered, entry.Name)
	}
	o, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create oracle %q: %w", entry.Label(), err)
	}
	return o, nil
}

// Names returns the registered oracle names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.oracles))
	for n := range r.oracles {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
