package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newGroup(maxFailures int) *FallbackGroup[string] {
	fg := NewFallbackGroup("ws", "ws", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	fg.AddFallback("llm", "llm")
	return fg
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	t.Parallel()

	fg := newGroup(3)
	var called string
	if err := fg.Execute(func(v string) error { called = v; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "ws" {
		t.Fatalf("called = %q, want ws", called)
	}
	if name, v := fg.Primary(); name != "ws" || v != "ws" {
		t.Errorf("Primary = (%q, %q), want ws", name, v)
	}
	if fg.Len() != 2 {
		t.Errorf("Len = %d, want 2", fg.Len())
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	t.Parallel()

	fg := newGroup(3)
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "ws" {
			return "", errTest
		}
		return "answer from " + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "answer from llm" {
		t.Fatalf("result = %q, want answer from llm", got)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()

	fg := newGroup(3)
	err := fg.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want the last failure wrapped", err)
	}
}

func TestFallbackGroup_SkipsOpenProvider(t *testing.T) {
	t.Parallel()

	fg := newGroup(2)
	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "ws" {
				return errTest
			}
			return nil
		})
	}
	if s := fg.States()["ws"]; s != StateOpen {
		t.Fatalf("ws breaker = %v, want open", s)
	}

	primaryCalled := false
	err := fg.Execute(func(v string) error {
		if v == "ws" {
			primaryCalled = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primaryCalled {
		t.Error("primary called while its breaker is open")
	}
	if s := fg.States()["llm"]; s != StateClosed {
		t.Errorf("llm breaker = %v, want closed", s)
	}
}

func TestFallbackGroup_CanceledStopsFailover(t *testing.T) {
	t.Parallel()

	fg := newGroup(3)
	var calls []string
	err := fg.Execute(func(v string) error {
		calls = append(calls, v)
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Error("cancellation reported as ErrAllFailed")
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only the primary", calls)
	}
}
