package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/proofline/internal/app"
	"github.com/MrWong99/proofline/internal/config"
	"github.com/MrWong99/proofline/internal/observe"
)

func serveCmd(configPath *string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the correction server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload engine settings and log level when the config file changes")
	return cmd
}

func serve(parent context.Context, configPath string, watch bool) error {
	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	logger := newLogger(level)
	slog.SetDefault(logger)

	slog.Info("proofline starting",
		"version", Version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		SampleRatio:    cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	metrics := observe.DefaultMetrics()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg,
		app.WithLevelVar(level),
		app.WithLogger(logger),
		app.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if watch {
		w, err := config.NewWatcher(configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Proofline - startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Oracle", cfg.Oracle.Label())
	for i, fb := range cfg.Fallbacks {
		printRow(fmt.Sprintf("Fallback %d", i+1), fb.Label())
	}
	printRow("Correction", onOff(cfg.Engine.IsEnabled()))
	printRow("Debounce", cfg.Engine.Debounce.String())
	printRow("Cooldown", cfg.Engine.Cooldown.String())
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
