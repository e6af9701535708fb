// Package main provides the entry point for the GitHub Actions trace exporter.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gha-exporter/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "gha-exporter",
	Short: "Export GitHub Actions workflow runs as OpenTelemetry traces",
	Long: "gha-exporter turns a finished GitHub Actions workflow run into a trace of workflow, job " +
		"and step spans with the step logs attached as log records, and sends it over OTLP.",
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger installs the process logger. GHA_DEBUG or app.log_level=debug enables debug output.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.App.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.App.Debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
