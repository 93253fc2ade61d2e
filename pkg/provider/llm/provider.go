// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance, ...) behind a single Complete call so the grammar oracle
// does not depend on any vendor SDK.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is usually the
	// "user" message that drives the response.
	Messages []Message

	// Temperature controls randomness in [0.0, 2.0]. Zero leaves the provider
	// default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before Messages.
	// Providers without a dedicated system field prepend it as a "system"
	// message.
	SystemPrompt string

	// JSON asks the backend to constrain the reply to one JSON object.
	// Providers without such a switch ignore it; the prompt still asks.
	JSON bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It returns promptly with ctx.Err() when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model. The
	// result is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
