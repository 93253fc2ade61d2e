package config_test

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/proofline/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
oracle:
  name: identity
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_OracleNameRequired(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err == nil {
		t.Fatal("expected error for missing oracle.name, got nil")
	}
	if !strings.Contains(err.Error(), "oracle.name") {
		t.Errorf("error should mention oracle.name, got: %v", err)
	}
}

func TestValidate_WebsocketURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"ws", "ws://localhost:4000/socket", false},
		{"wss", "wss://grammar.example.com/socket", false},
		{"http", "http://localhost:4000", true},
		{"missing", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			yaml := "oracle:\n  name: websocket\n  base_url: \"" + tt.url + "\"\n"
			_, err := config.LoadFromReader(strings.NewReader(yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("got err %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "base_url") {
				t.Errorf("error should mention base_url, got: %v", err)
			}
		})
	}
}

func TestValidate_LLMOracleRequiresModel(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("oracle:\n  name: openai\n"))
	if err == nil {
		t.Fatal("expected error for missing model, got nil")
	}
	if !strings.Contains(err.Error(), "oracle.model") {
		t.Errorf("error should mention oracle.model, got: %v", err)
	}
}

func TestValidate_UnknownOracleOnlyWarns(t *testing.T) {
	t.Parallel()
	yaml := `
oracle:
  name: my-private-backend
  model: m
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown oracle name should only warn, got: %v", err)
	}
}

func TestValidate_FallbackNameRequired(t *testing.T) {
	t.Parallel()
	yaml := `
oracle:
  name: identity
fallbacks:
  - model: gpt-4o
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unnamed fallback, got nil")
	}
	if !strings.Contains(err.Error(), "fallbacks[0].name") {
		t.Errorf("error should mention fallbacks[0].name, got: %v", err)
	}
}

func TestValidate_NegativeDurations(t *testing.T) {
	t.Parallel()
	yaml := `
oracle:
  name: identity
engine:
  cooldown: -1s
resilience:
  reset_timeout: -5s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative durations, got nil")
	}
	for _, field := range []string{"engine.cooldown", "resilience.reset_timeout"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should mention %s, got: %v", field, err)
		}
	}
}

func TestValidate_TLSNeedsBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: cert.pem
oracle:
  name: identity
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for incomplete tls, got nil")
	}
	if !strings.Contains(err.Error(), "tls") {
		t.Errorf("error should mention tls, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
resilience:
  max_failures: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log_level", "oracle.name", "max_failures"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "proofline.yaml")
	writeFile(t, path, "oracle:\n  name: identity\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Oracle.Name != "identity" {
		t.Errorf("oracle.name: got %q", cfg.Oracle.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected a not-exist error, got: %v", err)
	}
}

func TestValidOracleNames(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"websocket", "openai", "ollama", "identity"} {
		found := false
		for _, n := range config.ValidOracleNames {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ValidOracleNames is missing %q", name)
		}
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Oracle.Name != "openai" {
		t.Errorf("Oracle.Name = %q, want %q", cfg.Oracle.Name, "openai")
	}
	if len(cfg.Fallbacks) != 1 || cfg.Fallbacks[0].Name != "websocket" {
		t.Errorf("Fallbacks = %+v, want one websocket entry", cfg.Fallbacks)
	}
	if !cfg.Engine.IsEnabled() {
		t.Error("engine should be enabled")
	}
}

func TestValidate_TraceSampleRatio(t *testing.T) {
	t.Parallel()

	for _, ratio := range []string{"-0.1", "1.5"} {
		yaml := "oracle:\n  name: identity\ntelemetry:\n  trace_sample_ratio: " + ratio + "\n"
		_, err := config.LoadFromReader(strings.NewReader(yaml))
		if err == nil || !strings.Contains(err.Error(), "trace_sample_ratio") {
			t.Errorf("ratio %s: err = %v, want trace_sample_ratio error", ratio, err)
		}
	}
	if _, err := config.LoadFromReader(strings.NewReader("oracle:\n  name: identity\ntelemetry:\n  trace_sample_ratio: 0.2\n")); err != nil {
		t.Errorf("ratio 0.2: %v", err)
	}
}
