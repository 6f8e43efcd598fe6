package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"alloc-bench/internal/aggregate"
	"alloc-bench/internal/config"
	"alloc-bench/internal/logging"
	"alloc-bench/internal/manifest"
	"alloc-bench/internal/results"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	resultsDir string
	runID      string
	baseline   string
	metrics    []string
	series     string
	index      string
	csvPath    string
}

func newReportCmd() *cobra.Command {
	var opts reportOptions

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate the results of a finished run",
		Long:  "Average invocations, optionally normalize against a baseline variant and print one matrix per metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(opts)
		},
	}
	reportCmd.Flags().StringVar(&opts.resultsDir, "results", config.DefaultResultsDir, "Results root directory")
	reportCmd.Flags().StringVar(&opts.runID, "run", "", "Run id (default latest)")
	reportCmd.Flags().StringVar(&opts.baseline, "baseline", "", "Normalize against this variant")
	reportCmd.Flags().StringSliceVar(&opts.metrics, "metric", nil, "Metric to report (repeatable, default all)")
	reportCmd.Flags().StringVar(&opts.series, "series", aggregate.KeyVariant, "Column key (variant or bench)")
	reportCmd.Flags().StringVar(&opts.index, "index", aggregate.KeyWorkload, "Row key (bench or variant)")
	reportCmd.Flags().StringVar(&opts.csvPath, "csv", "", "Also write each matrix as CSV to this path")
	return reportCmd
}

func report(opts reportOptions) error {
	logger := logging.GetLogger()

	dir, err := manifest.ResolveRunDir(opts.resultsDir, opts.runID)
	if err != nil {
		return err
	}
	if !manifest.IsComplete(dir) {
		logger.WithField("run_dir", dir).Warn("Run has no completion summary, results may be partial")
	}

	records, err := results.Load(filepath.Join(dir, manifest.ResultsFile))
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	table, err := aggregate.MeanOverInvocations(records)
	if err != nil {
		return err
	}
	if opts.baseline != "" {
		if table, err = aggregate.Normalize(table, opts.baseline); err != nil {
			return err
		}
	}

	metrics := opts.metrics
	if len(metrics) == 0 {
		metrics = table.Metrics
	}

	// Build every matrix before printing so an error leaves no partial report.
	matrices := make([]*aggregate.Matrix, 0, len(metrics))
	for _, metric := range metrics {
		m, err := aggregate.Pivot(table, opts.series, opts.index, metric)
		if err != nil {
			return err
		}
		matrices = append(matrices, m)
	}

	for i, m := range matrices {
		title := m.Metric
		if opts.baseline != "" {
			title += " (relative to " + opts.baseline + ")"
		}
		fmt.Printf("%s\n\n", title)
		m.Print(os.Stdout)
		if i < len(matrices)-1 {
			fmt.Println()
		}

		if opts.csvPath != "" {
			path := csvPathFor(opts.csvPath, m.Metric, len(matrices))
			if err := writeMatrixCSV(path, m); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"metric": m.Metric,
				"file":   path,
			}).Info("Wrote matrix")
		}
	}
	return nil
}

// csvPathFor inserts the metric before the extension when several matrices share one path.
func csvPathFor(path, metric string, count int) string {
	if count == 1 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + metric + ext
}

func writeMatrixCSV(path string, m *aggregate.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
