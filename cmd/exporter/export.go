package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ghclient "gha-exporter/internal/clients/github"
	"gha-exporter/internal/config"
	"gha-exporter/internal/exporter"
	"gha-exporter/internal/telemetry"
)

var (
	exportRunID   int64
	exportRunName string
	exportRepo    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one finished workflow run",
	Long: `Export one finished workflow run. The run is taken from the variables the GitHub Action
sets (GHA_RUN_ID, GHA_RUN_NAME, GITHUB_REPOSITORY); flags override them.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().Int64Var(&exportRunID, "run-id", 0, "Workflow run ID (overrides GHA_RUN_ID)")
	exportCmd.Flags().StringVar(&exportRunName, "run-name", "", "Workflow run name (overrides GHA_RUN_NAME)")
	exportCmd.Flags().StringVar(&exportRepo, "repo", "", "Repository as owner/repo (overrides GITHUB_REPOSITORY)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if exportRunID != 0 {
		cfg.GitHub.RunID = exportRunID
	}
	if exportRunName != "" {
		cfg.GitHub.RunName = exportRunName
	}
	if exportRepo != "" {
		owner, _, err := ghclient.SplitRepo(exportRepo)
		if err != nil {
			return err
		}
		cfg.GitHub.Repository = exportRepo
		cfg.GitHub.Owner = owner
	}

	if err := cfg.ValidateExport(); err != nil {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Export.GetTimeoutDuration())
	defer cancel()

	report, err := exp.Export(ctx, exporter.Request{
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.RepoName(),
		RunID:   cfg.GitHub.RunID,
		RunName: cfg.GitHub.RunName,
	})
	if errors.Is(err, exporter.ErrNothingToExport) {
		logger.Info("No data to export, assuming this workflow run only contains the exporter job")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("Export complete", "spans", report.Spans, "unit_failures", len(report.Failures()))
	return nil
}
