package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/proofline/internal/correction"
	oraclemock "github.com/MrWong99/proofline/pkg/oracle/mock"
)

func TestParseFixes(t *testing.T) {
	t.Parallel()
	got := parseFixes([]string{"go=goes", "bad", "=x", "a=b=c"})
	if len(got) != 2 || got["go"] != "goes" || got["a"] != "b=c" {
		t.Errorf("parseFixes = %v", got)
	}
}

func TestSubstitutionOracle(t *testing.T) {
	t.Parallel()
	o := substitutionOracle(map[string]string{"go": "goes"})
	got, err := o.Correct(context.Background(), "He go to school.")
	if err != nil || got != "He goes to school." {
		t.Errorf("Correct = %q, %v", got, err)
	}
}

func TestCheck_PrintsChanges(t *testing.T) {
	t.Parallel()
	o := &oraclemock.Oracle{Responses: map[string]string{"He go to school.": "He goes to school."}}
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := check(context.Background(), cmd, o, "He go to school."); err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out.String(), `"go" → "goes"`) {
		t.Errorf("output missing change:\n%s", out.String())
	}
}

func TestCheck_NoChanges(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := check(context.Background(), cmd, &oraclemock.Oracle{}, "Fine."); err != nil {
		t.Fatalf("check: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no changes" {
		t.Errorf("output = %q", out.String())
	}
}

func TestCheck_OracleError(t *testing.T) {
	t.Parallel()
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	boom := errors.New("boom")
	if err := check(context.Background(), cmd, &oraclemock.Oracle{Err: boom}, "Fine."); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRunDemo_Offline(t *testing.T) {
	t.Parallel()
	s := correction.DefaultSettings()
	s.Debounce = 20 * time.Millisecond
	s.Cooldown = 20 * time.Millisecond
	s.ReleaseDelay = 5 * time.Millisecond
	s.HighlightDuration = 20 * time.Millisecond

	var out bytes.Buffer
	o := substitutionOracle(map[string]string{"go": "goes"})
	if err := runDemo(context.Background(), &out, o, s, "He go to school.", time.Millisecond); err != nil {
		t.Fatalf("runDemo: %v", err)
	}
	if !strings.Contains(out.String(), "document: He goes to school.") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	t.Parallel()
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not-found hint", err)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "proofline ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCheckCommand_WithConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "proofline.yaml")
	if err := os.WriteFile(path, []byte("oracle:\n  name: identity\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "check", "All", "good."})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no changes" {
		t.Errorf("output = %q", out.String())
	}
}

func TestServe_ExampleConfigStartsAndStops(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := strings.Replace(string(raw), `listen_addr: ":8080"`, `listen_addr: "127.0.0.1:0"`, 1)
	path := filepath.Join(t.TempDir(), "proofline.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- serve(ctx, path, true) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
		if ctx.Err() == nil {
			t.Fatal("serve returned before its context was cancelled")
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}
