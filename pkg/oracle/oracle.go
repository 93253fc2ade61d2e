// Package oracle defines the grammar-correction service consumed by the
// correction engine.
//
// An Oracle receives one sentence and returns its corrected form. Returning
// the input unchanged means "nothing to fix". Implementations decide how the
// correction is produced: a remote grammar service over websocket
// ([github.com/MrWong99/proofline/pkg/oracle/wsoracle]) or a chat LLM
// ([github.com/MrWong99/proofline/pkg/oracle/llmoracle]).
//
// The engine never issues more than one call at a time per editing session,
// but a single Oracle may be shared by many sessions and must therefore be
// safe for concurrent use.
package oracle

import (
	"context"
	"errors"
)

// ErrEmptyResult is returned when an oracle produced no usable text.
var ErrEmptyResult = errors.New("oracle: empty correction")

// Oracle corrects single sentences.
type Oracle interface {
	// Correct returns the corrected form of sentence. Cancellation and
	// deadlines are taken from ctx.
	Correct(ctx context.Context, sentence string) (string, error)
}

// Named is implemented by oracles that report a stable name for logs and
// metrics.
type Named interface {
	Name() string
}

// NameOf returns o's name, or "oracle" when it has none.
func NameOf(o Oracle) string {
	if n, ok := o.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return "oracle"
}

// Func adapts a plain function to the [Oracle] interface.
type Func func(ctx context.Context, sentence string) (string, error)

// Correct calls f.
func (f Func) Correct(ctx context.Context, sentence string) (string, error) {
	return f(ctx, sentence)
}

// Identity is an Oracle that never changes anything. It is useful when
// correction is configured off but the engine still needs a collaborator.
var Identity Oracle = Func(func(_ context.Context, s string) (string, error) { return s, nil })
