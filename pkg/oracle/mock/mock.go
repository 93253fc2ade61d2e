// Package mock provides a test double for the [oracle.Oracle] interface.
//
// Oracle records every call and answers from a fixed map, a function, or by
// echoing the input. An optional Gate channel holds each call until the test
// lets it through, which is how tests keep a request "in flight" while they
// edit the document.
//
// Example:
//
//	o := &mock.Oracle{Responses: map[string]string{
//	    "He go to school.": "He goes to school.",
//	}}
//	got, err := o.Correct(ctx, "He go to school.")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/proofline/pkg/oracle"
)

// Oracle is a mock implementation of [oracle.Oracle].
type Oracle struct {
	mu sync.Mutex

	// NameResult is returned by Name. Empty means "mock".
	NameResult string

	// Responses maps input sentences to corrections. Sentences not present
	// are echoed back unchanged.
	Responses map[string]string

	// CorrectFunc, if set, takes precedence over Responses.
	CorrectFunc func(ctx context.Context, sentence string) (string, error)

	// Err, if non-nil, is returned by every call.
	Err error

	// Gate, if non-nil, is received from before answering. Close it or send
	// on it to release calls.
	Gate chan struct{}

	calls []string
}

var (
	_ oracle.Oracle = (*Oracle)(nil)
	_ oracle.Named  = (*Oracle)(nil)
)

// Name implements [oracle.Named].
func (o *Oracle) Name() string {
	if o.NameResult == "" {
		return "mock"
	}
	return o.NameResult
}

// Correct records the call and answers it.
func (o *Oracle) Correct(ctx context.Context, sentence string) (string, error) {
	o.mu.Lock()
	o.calls = append(o.calls, sentence)
	gate, fn, err := o.Gate, o.CorrectFunc, o.Err
	resp, ok := o.Responses[sentence]
	o.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, sentence)
	}
	if err != nil {
		return "", err
	}
	if ok {
		return resp, nil
	}
	return sentence, nil
}

// Calls returns a copy of the sentences passed to Correct, in order.
func (o *Oracle) Calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}

// CallCount returns the number of Correct calls.
func (o *Oracle) CallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

// SetErr changes Err under the lock.
func (o *Oracle) SetErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Err = err
}

// Reset clears recorded calls.
func (o *Oracle) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = nil
}
