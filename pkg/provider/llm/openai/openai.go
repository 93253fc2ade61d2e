// Package openai talks to the OpenAI chat completions API, or to any server
// speaking the same protocol, with the official openai-go SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/proofline/pkg/provider/llm"
)

// ErrNoMessages is returned by Complete for a request without any message.
var ErrNoMessages = errors.New("openai: request has no messages")

// Provider implements [llm.Provider] for one OpenAI model.
type Provider struct {
	client oai.Client
	model  string
	caps   llm.ModelCapabilities
}

var _ llm.Provider = (*Provider)(nil)

type settings struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
}

// Option configures a [Provider].
type Option func(*settings)

// WithBaseURL points the provider at an OpenAI-compatible server, e.g. a
// self-hosted vLLM or LM Studio instance.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization sets the OpenAI organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.organization = org }
}

// WithTimeout bounds every HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithMaxRetries sets how often the SDK retries a failed request. Default: 0,
// since the oracle sits behind a circuit breaker.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.maxRetries = n }
}

// New returns a Provider for model authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	var s settings
	for _, o := range opts {
		o(&s)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(s.maxRetries),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(s.organization))
	}
	if s.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		caps:   modelCapabilities(model),
	}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.request(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %s: completion: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s: response has no choices", p.model)
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.caps }

func (p *Provider) request(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := message(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return oai.ChatCompletionNewParams{}, ErrNoMessages
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSON && p.caps.SupportsJSONMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

func message(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
}

// modelCapabilities knows the OpenAI model families by prefix. The first
// matching entry wins; anything unknown gets the gpt-4o-mini class defaults.
func modelCapabilities(model string) llm.ModelCapabilities {
	families := []struct {
		prefix string
		caps   llm.ModelCapabilities
	}{
		{"gpt-4o", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsJSONMode: true}},
		{"gpt-4.1", llm.ModelCapabilities{ContextWindow: 1_047_576, MaxOutputTokens: 32_768, SupportsJSONMode: true}},
		{"gpt-4-turbo", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsJSONMode: true}},
		{"gpt-4", llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}},
		{"gpt-3.5-turbo", llm.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096, SupportsJSONMode: true}},
		{"o1-mini", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 65_536}},
		{"o1", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsJSONMode: true}},
		{"o3", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsJSONMode: true}},
	}
	lower := strings.ToLower(model)
	for _, f := range families {
		if strings.HasPrefix(lower, f.prefix) {
			return f.caps
		}
	}
	return llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsJSONMode: true}
}
