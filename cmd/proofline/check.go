package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/proofline/internal/app"
	"github.com/MrWong99/proofline/internal/config"
	"github.com/MrWong99/proofline/internal/correction"
	"github.com/MrWong99/proofline/internal/resilience"
	"github.com/MrWong99/proofline/pkg/oracle"
)

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check <sentence>",
		Short: "Send one sentence to the configured oracle and show the changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			level := new(slog.LevelVar)
			level.Set(cfg.Server.LogLevel.Level())
			slog.SetDefault(newLogger(level))

			o, closeAll, err := buildOracle(cfg)
			if err != nil {
				return err
			}
			defer closeAll()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return check(ctx, cmd, o, strings.Join(args, " "))
		},
	}
}

// buildOracle creates the configured oracle chain with the built-in registry.
func buildOracle(cfg *config.Config) (oracle.Oracle, func(), error) {
	reg := config.NewRegistry()
	app.RegisterBuiltinOracles(reg, resilience.FallbackConfig{})
	o, closers, err := app.BuildOracle(cfg, reg, nil)
	if err != nil {
		return nil, nil, err
	}
	return o, func() {
		for _, c := range closers {
			_ = c()
		}
	}, nil
}

func check(ctx context.Context, cmd *cobra.Command, o oracle.Oracle, sentence string) error {
	corrected, err := o.Correct(ctx, sentence)
	if err != nil {
		return fmt.Errorf("%s: %w", oracle.NameOf(o), err)
	}

	out := cmd.OutOrStdout()
	if corrected == sentence {
		fmt.Fprintln(out, "no changes")
		return nil
	}
	fmt.Fprintf(out, "original : %s\ncorrected: %s\n", sentence, corrected)
	for _, c := range correction.DiffWords(sentence, corrected) {
		fmt.Fprintf(out, "  [%s] %q → %q\n", c.Kind, c.Old, c.New)
	}
	return nil
}
