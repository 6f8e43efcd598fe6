package main

import (
	"context"
	"fmt"
	"path/filepath"

	"alloc-bench/internal/config"
	"alloc-bench/internal/database"
	"alloc-bench/internal/logging"
	"alloc-bench/internal/manifest"
	"alloc-bench/internal/results"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var configFile, resultsDir, runID, replay string

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a finished run to InfluxDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if replay != "" {
				return replaySpool(context.Background(), cfg, replay)
			}
			if resultsDir == "" {
				resultsDir = cfg.GetResultsDir()
			}
			return exportRun(context.Background(), cfg, resultsDir, runID)
		},
	}
	exportCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to suite configuration file")
	exportCmd.Flags().StringVar(&resultsDir, "results", "", "Results root directory")
	exportCmd.Flags().StringVar(&runID, "run", "", "Run id (default latest)")
	exportCmd.Flags().StringVar(&replay, "replay", "", "Replay a spooled export instead")
	exportCmd.MarkFlagRequired("config")
	return exportCmd
}

func connect(cfg *config.SuiteConfig) (*database.InfluxDBClient, error) {
	if cfg.Suite.Data.DB == nil {
		return nil, config.Errorf("suite defines no database")
	}
	return database.NewInfluxDBClient(*cfg.Suite.Data.DB)
}

// exportRun pushes a completed run. When the database rejects it the run is
// spooled to disk for a later --replay.
func exportRun(ctx context.Context, cfg *config.SuiteConfig, resultsDir, runID string) error {
	logger := logging.GetLogger()

	dir, err := manifest.ResolveRunDir(resultsDir, runID)
	if err != nil {
		return err
	}
	summary, err := manifest.ReadSummary(dir)
	if err != nil {
		return fmt.Errorf("run %s is not complete: %w", filepath.Base(dir), err)
	}
	records, err := results.Load(filepath.Join(dir, manifest.ResultsFile))
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	client, err := connect(cfg)
	if err == nil {
		defer client.Close()
		err = client.WriteRun(ctx, summary, records)
	}
	if err != nil {
		path, spoolErr := database.WriteSpoolArtifact(database.DefaultSpoolDir(), database.BuildSpoolArtifact(summary, records))
		if spoolErr != nil {
			logger.WithError(spoolErr).Error("Failed to spool export")
		} else {
			logger.WithField("spool", path).Warn("Export failed, run spooled for replay")
		}
		return fmt.Errorf("failed to export run %s: %w", summary.RunID, err)
	}
	return nil
}

func replaySpool(ctx context.Context, cfg *config.SuiteConfig, path string) error {
	artifact, err := database.ReadSpoolArtifact(path)
	if err != nil {
		return err
	}
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Replay(ctx, artifact); err != nil {
		return err
	}
	logging.GetLogger().WithField("run_id", artifact.RunID).Info("Replayed spooled export")
	return nil
}
