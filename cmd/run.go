package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"alloc-bench/internal/config"
	"alloc-bench/internal/counters"
	"alloc-bench/internal/logging"
	"alloc-bench/internal/registry"
	"alloc-bench/internal/suite"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRunCmd(logLevel *string) *cobra.Command {
	var configFile, runID string
	var export bool
	var opts config.RunOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark matrix",
		Long:  "Run every selected workload against every selected variant, in order, and record the counters of each invocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(configFile, opts, runID, export, *logLevel != "")
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to suite configuration file")
	runCmd.Flags().StringSliceVarP(&opts.Variants, "variant", "a", nil, "Variant to measure (repeatable, default all)")
	runCmd.Flags().StringSliceVarP(&opts.Workloads, "bench", "b", nil, "Workload to run (repeatable, default all)")
	runCmd.Flags().IntVarP(&opts.Invocations, "invocations", "i", 1, "Invocations per cell")
	runCmd.Flags().StringVarP(&opts.Events, "events", "e", "", "Comma-separated perf events")
	runCmd.Flags().BoolVar(&opts.Build, "build", false, "Run the suite's build command first")
	runCmd.Flags().BoolVar(&opts.Debug, "debug", false, "Use the debug build profile")
	runCmd.Flags().BoolVar(&opts.Test, "test", false, "Run workloads directly, without measuring")
	runCmd.Flags().BoolVar(&opts.Record, "record", false, "Capture a perf trace of a single cell")
	runCmd.Flags().BoolVar(&opts.Interactive, "interactive", false, "Start a single cell under the debugger")
	runCmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Kill a cell after this long (0 = no limit)")
	runCmd.Flags().StringVar(&opts.ResultsDir, "results", "", "Results root directory")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Resume into an existing run directory")
	runCmd.Flags().BoolVar(&export, "export", false, "Export the run to InfluxDB when it completes")
	runCmd.MarkFlagRequired("config")

	return runCmd
}

func runBenchmark(configFile string, opts config.RunOptions, runID string, export, levelFromFlag bool) error {
	logger := logging.GetLogger()

	cfg, content, err := config.LoadConfigWithContent(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Failed to load configuration")
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !levelFromFlag && cfg.Suite.LogLevel != "" {
		if err := logging.SetLogLevel(cfg.Suite.LogLevel); err != nil {
			logger.WithField("log_level", cfg.Suite.LogLevel).WithError(err).Warn("Invalid log level in config, using INFO")
			logging.SetLogLevel("info")
		}
	}

	profile := config.ProfileRelease
	if opts.Debug {
		profile = config.ProfileDebug
	}
	reg, err := registry.New(cfg, profile)
	if err != nil {
		logger.WithError(err).Error("Invalid registry")
		return err
	}

	rc, err := config.NewRunConfiguration(opts, cfg, reg.VariantNames(), reg.WorkloadNames())
	if err != nil {
		logger.WithError(err).Error("Invalid run configuration")
		return err
	}

	if rc.Mode.Measuring() {
		for _, check := range counters.Preflight(rc.EventsOrDefault()) {
			if check.Known && !check.Supported {
				logger.WithField("event", check.Event).Warn("Counter could not be opened, perf may report it as not counted")
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for sig := range sigChan {
			// The debugger owns the terminal and handles interrupts itself.
			if rc.Mode == config.ModeInteractive && sig == syscall.SIGINT {
				continue
			}
			logger.Info("Received interrupt signal, shutting down")
			cancel()
			return
		}
	}()

	s := suite.New(cfg, content, rc, reg)
	s.RunID = runID

	variants := rc.Variants
	if rc.AllVariants {
		variants = nil
	}
	summary, err := s.Run(ctx, variants, rc.Workloads, rc.Invocations)
	if err != nil {
		logger.WithError(err).Error("Run failed")
		return err
	}

	if len(summary.Failures) > 0 {
		logger.WithFields(logrus.Fields{
			"failed": len(summary.Failures),
			"cells":  summary.Cells,
		}).Warn("Some cells failed, see their logs")
	}

	if export && rc.Mode.Measuring() {
		return exportRun(ctx, cfg, rc.ResultsDir, summary.RunID)
	}
	return nil
}
