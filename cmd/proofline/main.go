// Command proofline serves incremental grammar correction to browser editors
// over a websocket and offers a few helper commands for trying oracles out.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/proofline/internal/config"
)

// Version is stamped at build time.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "proofline: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "proofline",
		Short: "Incremental sentence correction for rich-text editors",
		Long: `Proofline watches what a user types, sends each completed sentence to a
grammar oracle and patches the correction back into the editor, highlighting
the words that changed.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	cmd.AddCommand(
		serveCmd(&configPath),
		checkCmd(&configPath),
		demoCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "proofline %s\n", Version)
			},
		},
	)
	return cmd
}

// newLogger returns a text logger whose level follows lv.
func newLogger(lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

// loadConfig loads path with a friendlier message for a missing file.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
		}
		return nil, err
	}
	return cfg, nil
}
