package anyllm

import (
	"errors"
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/proofline/pkg/provider/llm"
)

func TestParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params := p.params(llm.CompletionRequest{
		SystemPrompt: "fix grammar",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "He go to school."}},
		Temperature:  0.1,
		MaxTokens:    256,
	})

	if params.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v, want 256", params.MaxTokens)
	}
}

func TestParams_ZeroValuesOmitted(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3"}
	params := p.params(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if params.Temperature != nil {
		t.Errorf("Temperature = %v, want nil", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("MaxTokens = %v, want nil", *params.MaxTokens)
	}
	if len(params.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1 without a system prompt", len(params.Messages))
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model      string
		wantWindow int
		wantJSON   bool
	}{
		{"gpt-4o-mini", 128_000, true},
		{"gpt-4-turbo", 128_000, true},
		{"gpt-4", 8_192, false},
		{"claude-3-5-sonnet-latest", 200_000, true},
		{"CLAUDE-3-OPUS", 200_000, true},
		{"gemini-1.5-pro", 2_097_152, true},
		{"gemini-2.0-flash", 1_048_576, true},
		{"llama3", 8_192, false},
		{"my-custom-model", 128_000, true},
	}
	for _, tt := range tests {
		caps := modelCapabilities(tt.model)
		if caps.ContextWindow != tt.wantWindow {
			t.Errorf("%s: ContextWindow = %d, want %d", tt.model, caps.ContextWindow, tt.wantWindow)
		}
		if caps.SupportsJSONMode != tt.wantJSON {
			t.Errorf("%s: SupportsJSONMode = %v, want %v", tt.model, caps.SupportsJSONMode, tt.wantJSON)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if !errors.Is(err, ErrUnknownVendor) {
		t.Errorf("err = %v, want ErrUnknownVendor", err)
	}
}

func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestVendors(t *testing.T) {
	t.Parallel()

	got := Vendors()
	if !slices.IsSorted(got) {
		t.Errorf("Vendors() = %v, want sorted", got)
	}
	for _, want := range []string{"anthropic", "ollama", "openai", "llamafile"} {
		if !slices.Contains(got, want) {
			t.Errorf("Vendors() = %v, missing %q", got, want)
		}
	}
}

func TestNew_Vendors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		vendor, model string
		opts          []anyllmlib.Option
	}{
		{"openai", "gpt-4o", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"Anthropic", "claude-3-5-sonnet-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3", nil},
		{"llamacpp", "llama3", nil},
		{"llamafile", "llama3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			t.Parallel()
			p, err := New(tt.vendor, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.vendor, err)
			}
			if got := p.Capabilities(); got != modelCapabilities(tt.model) {
				t.Errorf("Capabilities() = %+v, want %+v", got, modelCapabilities(tt.model))
			}
		})
	}
}
