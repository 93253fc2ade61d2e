package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/proofline/internal/app"
	"github.com/MrWong99/proofline/internal/correction"
	"github.com/MrWong99/proofline/pkg/editor/memdoc"
	"github.com/MrWong99/proofline/pkg/oracle"
)

const demoText = "He go to school. She have two cat. They was late."

func demoCmd(configPath *string) *cobra.Command {
	var (
		text    string
		delay   time.Duration
		offline bool
		fixes   []string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Type text into an in-memory editor and watch it get corrected",
		Long: `demo types text one character at a time into an in-memory document with a
correction engine attached, then prints the document and every correction.

With --offline no config is read; the oracle applies the word replacements
given with --fix (old=new).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := new(slog.LevelVar)
			slog.SetDefault(newLogger(level))

			var (
				o        oracle.Oracle
				settings = correction.DefaultSettings()
			)
			if offline {
				o = substitutionOracle(parseFixes(fixes))
				level.Set(slog.LevelWarn)
			} else {
				cfg, err := loadConfig(*configPath)
				if err != nil {
					return err
				}
				level.Set(cfg.Server.LogLevel.Level())
				settings = app.EngineSettings(cfg.Engine)
				var closeAll func()
				o, closeAll, err = buildOracle(cfg)
				if err != nil {
					return err
				}
				defer closeAll()
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runDemo(ctx, cmd.OutOrStdout(), o, settings, text, delay)
		},
	}
	cmd.Flags().StringVar(&text, "text", demoText, "text to type")
	cmd.Flags().DurationVar(&delay, "delay", 40*time.Millisecond, "pause between typed characters")
	cmd.Flags().BoolVar(&offline, "offline", false, "use a local substitution oracle instead of the configured one")
	cmd.Flags().StringSliceVar(&fixes, "fix", []string{"go=goes", "have=has", "cat.=cats.", "was=were"}, "word replacements for --offline, as old=new")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, o oracle.Oracle, s correction.Settings, text string, delay time.Duration) error {
	doc := memdoc.New("")
	e := correction.New(doc, o, correction.WithSettings(s))
	e.Start(ctx)
	defer e.Close()
	doc.OnChange(e.OnDocumentChanged)

	for _, r := range text {
		if err := doc.Type(string(r)); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	// Let the last sentence go through debounce, oracle and release.
	deadline := time.Now().Add(s.Debounce + s.Cooldown + s.ReleaseDelay + 30*time.Second)
	quiet := 0
	for quiet < 5 && time.Now().Before(deadline) {
		time.Sleep(s.Debounce)
		if e.State() == correction.StateIdle {
			quiet++
		} else {
			quiet = 0
		}
	}

	fmt.Fprintf(out, "document: %s\n", doc.PlainText())
	for _, rec := range e.Records() {
		fmt.Fprintf(out, "  %q → %q\n", rec.Original, rec.Corrected)
	}
	if len(e.Records()) == 0 {
		fmt.Fprintln(out, "  (no corrections)")
	}
	return nil
}

func parseFixes(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		old, repl, ok := strings.Cut(p, "=")
		if ok && old != "" {
			m[old] = repl
		}
	}
	return m
}

// substitutionOracle replaces whole words according to fixes.
func substitutionOracle(fixes map[string]string) oracle.Oracle {
	return oracle.Func(func(_ context.Context, s string) (string, error) {
		words := strings.Fields(s)
		for i, w := range words {
			if r, ok := fixes[w]; ok {
				words[i] = r
			}
		}
		return strings.Join(words, " "), nil
	})
}
