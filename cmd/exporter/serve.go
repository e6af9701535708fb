package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ghclient "gha-exporter/internal/clients/github"
	"gha-exporter/internal/config"
	"gha-exporter/internal/db"
	"gha-exporter/internal/exporter"
	"gha-exporter/internal/metrics"
	"gha-exporter/internal/server"
	"gha-exporter/internal/telemetry"
)

var (
	servePort   int
	serveNoDB   bool
	serveDBPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive workflow_run webhooks and export completed runs",
	Long: `Start an HTTP server that accepts GitHub workflow_run webhooks on /webhook and exports
each completed run in the background. Exported run attempts are remembered in a SQLite ledger.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "Export ledger path (overrides db.path)")
	serveCmd.Flags().BoolVar(&serveNoDB, "no-db", false, "Run without the export ledger")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveDBPath != "" {
		cfg.DB.Path = serveDBPath
	}

	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logger := newLogger(cfg)

	gh, err := ghclient.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Token, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	exp := exporter.New(gh, exporter.NewTelemetryFactory(telemetry.Settings{
		Endpoint:   cfg.OTLP.ExporterEndpoint(),
		LicenseKey: cfg.OTLP.LicenseKey,
	}), cfg.Export, logger)

	var ledger server.Ledger
	if !serveNoDB {
		database, err := db.New(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return err
		}
		ledger = database
	}

	if cfg.Server.WebhookSecret == "" {
		logger.Warn("No webhook secret configured, payload signatures are not verified", "env", cfg.Server.WebhookSecretEnv)
	}

	srv := server.New(cfg, exp, ledger, metrics.New(), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
