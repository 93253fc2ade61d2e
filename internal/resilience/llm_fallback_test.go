package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/proofline/pkg/provider/llm"
	llmmock "github.com/MrWong99/proofline/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from gpt-4o-mini"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from gpt-3.5-turbo"}}

	fb := NewLLMFallback(primary, "gpt-4o-mini", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}})
	fb.AddFallback("gpt-3.5-turbo", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from gpt-4o-mini" {
		t.Fatalf("content = %q, want from gpt-4o-mini", resp.Content)
	}
	if n := len(secondary.Calls()); n != 0 {
		t.Fatalf("secondary called %d times, want 0", n)
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Fatalf("content = %q, want from secondary", resp.Content)
	}
}

func TestLLMFallback_Capabilities_FromPrimary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128_000}}
	secondary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8_192}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	if got := fb.Capabilities().ContextWindow; got != 128_000 {
		t.Errorf("ContextWindow = %d, want 128000", got)
	}
}
