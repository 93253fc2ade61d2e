package resilience

import (
	"context"

	"github.com/MrWong99/proofline/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with failover across several LLM
// backends, typically the same vendor with a cheaper or older model behind
// the preferred one.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the primary's capabilities; they are static metadata
// and do not take part in failover.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	_, p := f.group.Primary()
	return p.Capabilities()
}
