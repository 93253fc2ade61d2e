// Package anyllm reaches hosted and local LLM vendors through
// github.com/mozilla-ai/any-llm-go. One [Provider] talks to one model of one
// vendor; the grammar oracle only ever needs a single non-streaming
// completion from it.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/proofline/pkg/provider/llm"
)

// ErrUnknownVendor is returned by [New] for a vendor missing from [Vendors].
var ErrUnknownVendor = errors.New("anyllm: unknown vendor")

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

// Keyed by the oracle name used in configuration. Without an API key option
// each backend reads its usual environment variable; local servers (ollama,
// llamacpp, llamafile) dial their default address.
var backends = map[string]backendFunc{
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Vendors returns the vendor names accepted by [New], sorted.
func Vendors() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider implements [llm.Provider] for one vendor and model.
type Provider struct {
	backend anyllmlib.Provider
	vendor  string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New connects model on vendor. opts are passed to any-llm-go unchanged,
// typically [anyllmlib.WithAPIKey] and [anyllmlib.WithBaseURL].
func New(vendor, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: %s: model must not be empty", vendor)
	}
	build, ok := backends[strings.ToLower(vendor)]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownVendor, vendor, strings.Join(Vendors(), ", "))
	}
	backend, err := build(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", vendor, err)
	}
	return &Provider{backend: backend, vendor: strings.ToLower(vendor), model: model}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s/%s: completion: %w", p.vendor, p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s/%s: response has no choices", p.vendor, p.model)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}

// capabilityRule applies to every model whose lowercased name matches.
type capabilityRule struct {
	match func(model string) bool
	caps  llm.ModelCapabilities
}

func prefix(p ...string) func(string) bool {
	return func(m string) bool {
		return slices.ContainsFunc(p, func(s string) bool { return strings.HasPrefix(m, s) })
	}
}

func contains(p ...string) func(string) bool {
	return func(m string) bool {
		return slices.ContainsFunc(p, func(s string) bool { return strings.Contains(m, s) })
	}
}

// First match wins, so more specific names come first. Small local models
// are marked as unreliable with JSON so the oracle asks them for bare text.
var capabilityRules = []capabilityRule{
	{prefix("gpt-4o", "gpt-4.1"), llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsJSONMode: true}},
	{prefix("gpt-4-turbo"), llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsJSONMode: true}},
	{prefix("gpt-4"), llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}},
	{prefix("gpt-3.5-turbo"), llm.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096, SupportsJSONMode: true}},
	{prefix("claude"), llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192, SupportsJSONMode: true}},
	{contains("gemini-1.5-pro"), llm.ModelCapabilities{ContextWindow: 2_097_152, MaxOutputTokens: 8_192, SupportsJSONMode: true}},
	{contains("gemini-2.0-flash", "gemini-1.5-flash"), llm.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192, SupportsJSONMode: true}},
	{prefix("gemini"), llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 8_192, SupportsJSONMode: true}},
	{prefix("llama", "phi", "gemma", "tinyllama", "qwen2.5:0.5b"), llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048}},
}

var defaultCapabilities = llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsJSONMode: true}

func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, r := range capabilityRules {
		if r.match(lower) {
			return r.caps
		}
	}
	return defaultCapabilities
}
