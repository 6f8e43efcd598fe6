package suite

import (
	"context"
	"fmt"
	"os"
	"time"

	"alloc-bench/internal/command"
	"alloc-bench/internal/config"
	"alloc-bench/internal/executor"
	"alloc-bench/internal/host"
	"alloc-bench/internal/logging"
	"alloc-bench/internal/manifest"
	"alloc-bench/internal/registry"
	"alloc-bench/internal/results"

	"github.com/dustin/go-humanize"
	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Suite drives one run over the selected matrix. Cells execute strictly
// one after another: hardware counters and the per-pair logs are shared.
type Suite struct {
	cfg      *config.SuiteConfig
	content  string
	rc       *config.RunConfiguration
	registry *registry.Registry

	// RunID re-enters an existing run directory instead of starting a new one.
	RunID string
}

func New(cfg *config.SuiteConfig, content string, rc *config.RunConfiguration, reg *registry.Registry) *Suite {
	return &Suite{cfg: cfg, content: content, rc: rc, registry: reg}
}

// Run executes workload → variant → invocation. An empty variants
// selection means every registered variant, including libraries the build
// step produces. Configuration problems are returned before any cell is
// spawned; cell failures are counted in the summary and never abort the run.
func (s *Suite) Run(ctx context.Context, variants, workloads []string, invocations int) (*manifest.Summary, error) {
	logger := logging.GetLogger()

	rc := *s.rc
	rc.Variants = variants
	rc.Workloads = workloads
	rc.Invocations = invocations
	rc.AllVariants = len(variants) == 0
	if rc.AllVariants {
		rc.Variants = s.registry.VariantNames()
	}
	if !rc.Build {
		rc.AllVariants = false
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	if rc.Build {
		// Variant names may refer to libraries the build is about to produce.
		if err := s.registry.Check(nil, rc.Workloads); err != nil {
			return nil, err
		}
		if err := s.build(ctx, &rc); err != nil {
			return nil, err
		}
		if err := s.registry.Rediscover(); err != nil {
			return nil, err
		}
		if rc.AllVariants {
			rc.Variants = s.registry.VariantNames()
			rc.AllVariants = false
			if err := rc.Validate(); err != nil {
				return nil, err
			}
		}
	}
	if err := s.registry.Check(rc.Variants, rc.Workloads); err != nil {
		return nil, err
	}

	resolvedVariants, resolvedWorkloads, err := s.registry.ResolveAll(rc.Variants, rc.Workloads)
	if err != nil {
		return nil, err
	}

	checksum, err := config.MatrixChecksum(s.cfg, &rc)
	if err != nil {
		return nil, err
	}

	summary := &manifest.Summary{
		Suite:          s.cfg.Suite.Name,
		MatrixChecksum: checksum,
		Mode:           rc.Mode.String(),
		Profile:        string(rc.Profile),
		Variants:       rc.Variants,
		Workloads:      rc.Workloads,
		Invocations:    rc.Invocations,
		Events:         rc.EventsOrDefault(),
		ConfigContent:  s.content,
	}

	var m *manifest.Manifest
	var store *results.Store
	exec := executor.New(nil, rc.ReportPath, rc.Timeout)

	if rc.Mode.Measuring() {
		m, err = s.openManifest(rc.ResultsDir)
		if err != nil {
			return nil, err
		}
		summary.RunID = m.ID
		store = results.NewStore(m.ResultsPath())
		exec = executor.New(m, rc.ReportPath, rc.Timeout)
	}

	composer := command.NewComposer(&rc)
	summary.StartTime = time.Now()

	logging.Start("%s run %s: %d variants x %d workloads x %d invocations",
		rc.Mode, summary.RunID, len(resolvedVariants), len(resolvedWorkloads), rc.Invocations)
	logger.WithFields(logrus.Fields{
		"run_id":          summary.RunID,
		"mode":            rc.Mode.String(),
		"profile":         rc.Profile,
		"matrix_checksum": checksum,
	}).Info("Starting run")

	runErr := s.runMatrix(ctx, &rc, composer, exec, store, resolvedVariants, resolvedWorkloads, summary)

	summary.EndTime = time.Now()
	logging.Finish("%s run %s finished: %d/%d cells succeeded", rc.Mode, summary.RunID, summary.Succeeded, summary.Cells)

	if runErr != nil {
		return summary, runErr
	}

	if m != nil {
		s.complete(m, summary)
	}
	return summary, nil
}

func (s *Suite) runMatrix(ctx context.Context, rc *config.RunConfiguration, composer *command.Composer, exec *executor.Executor,
	store *results.Store, variants []registry.Variant, workloads []registry.Workload, summary *manifest.Summary) error {
	logger := logging.GetLogger()

	for _, w := range workloads {
		for _, v := range variants {
			for i := 0; i < rc.Invocations; i++ {
				if err := ctx.Err(); err != nil {
					logger.WithError(err).Warn("Run interrupted")
					return err
				}

				cell := executor.Cell{
					Workload:     w.Name,
					Variant:      v.Name,
					Invocation:   i,
					AllowFailure: w.AllowFailure,
					Timeout:      w.Timeout,
				}
				cmd, err := composer.Compose(command.Invocation{Variant: v, Workload: w, Index: i})
				if err != nil {
					return err
				}

				summary.Cells++
				if err := s.runCell(ctx, rc, exec, store, cell, w, cmd); err != nil {
					summary.Failures = append(summary.Failures, manifest.CellFailure{
						Workload:   cell.Workload,
						Variant:    cell.Variant,
						Invocation: cell.Invocation,
						Error:      err.Error(),
					})
					continue
				}
				summary.Succeeded++
			}
		}
	}
	return nil
}

// runCell runs the pre hooks, the cell itself and the post hooks. A failing
// pre hook fails the cell; a failing post hook is only reported.
func (s *Suite) runCell(ctx context.Context, rc *config.RunConfiguration, exec *executor.Executor, store *results.Store,
	cell executor.Cell, w registry.Workload, cmd command.Command) error {
	logger := logging.GetLogger().WithFields(logrus.Fields{
		"bench":      cell.Workload,
		"variant":    cell.Variant,
		"invocation": cell.Invocation,
	})

	for _, argv := range w.Pre {
		if err := s.hook(ctx, rc, exec, cell, hookCommand(argv, w.Dir)); err != nil {
			logger.WithError(err).Warn("Pre hook failed, skipping cell")
			return fmt.Errorf("pre hook: %w", err)
		}
	}

	var cellErr error
	if rc.Mode.Measuring() {
		rec, err := exec.Measure(ctx, cell, cmd)
		if err != nil {
			cellErr = err
		} else if err := store.Append(rec); err != nil {
			logger.WithError(err).Error("Failed to store record")
			logging.Failure("%s: %v", cell, err)
			cellErr = fmt.Errorf("store: %w", err)
		}
	} else {
		cellErr = exec.Run(ctx, cmd)
	}

	for _, argv := range w.Post {
		if err := s.hook(ctx, rc, exec, cell, hookCommand(argv, w.Dir)); err != nil {
			logger.WithError(err).Warn("Post hook failed")
		}
	}

	return cellErr
}

func (s *Suite) hook(ctx context.Context, rc *config.RunConfiguration, exec *executor.Executor, cell executor.Cell, cmd command.Command) error {
	if rc.Mode.Measuring() {
		return exec.Hook(ctx, cell, cmd)
	}
	return exec.Run(ctx, cmd)
}

func hookCommand(argv []string, dir string) command.Command {
	return command.Command{Program: argv[0], Args: argv[1:], Dir: dir}
}

// build runs the suite's build command for the selected profile.
func (s *Suite) build(ctx context.Context, rc *config.RunConfiguration) error {
	logger := logging.GetLogger()

	cmdline := s.cfg.Suite.Build.Command
	if rc.Profile == config.ProfileDebug && s.cfg.Suite.Build.DebugCommand != "" {
		cmdline = s.cfg.Suite.Build.DebugCommand
	}
	if cmdline == "" {
		return config.Errorf("build requested but suite defines no build command")
	}
	argv, err := shlex.Split(cmdline)
	if err != nil || len(argv) == 0 {
		return config.Errorf("invalid build command %q", cmdline)
	}

	started := time.Now()
	exec := executor.New(nil, rc.ReportPath, 0)
	if err := exec.Run(ctx, hookCommand(argv, s.cfg.Suite.Build.Dir)); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"profile": rc.Profile,
		"elapsed": time.Since(started).Round(time.Millisecond),
	}).Info("Build finished")
	return nil
}

func (s *Suite) openManifest(resultsDir string) (*manifest.Manifest, error) {
	id := s.RunID
	if id == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		id = manifest.NewRunIdentity(hostname, time.Now()).String()
	}
	return manifest.Open(resultsDir, id)
}

// complete writes the completion summary. Failing to write it leaves the
// run readable but marked incomplete, so it is logged rather than returned.
func (s *Suite) complete(m *manifest.Manifest, summary *manifest.Summary) {
	logger := logging.GetLogger()

	hostConfig, err := host.GetHostConfig()
	if err != nil {
		logger.WithError(err).Warn("Failed to collect host information")
	}
	summary.Host = hostConfig

	if summary.Sessions == 0 {
		summary.Sessions = 1
	}
	if prev, err := manifest.ReadSummary(m.Dir); err == nil {
		summary.Merge(prev)
	}

	path, err := manifest.WriteSummary(m.Dir, summary)
	if err != nil {
		logger.WithError(err).Error("Failed to write run summary")
		return
	}

	fields := logrus.Fields{
		"run_id":    m.ID,
		"cells":     humanize.Comma(int64(summary.Cells)),
		"succeeded": humanize.Comma(int64(summary.Succeeded)),
		"failed":    humanize.Comma(int64(len(summary.Failures))),
		"elapsed":   summary.EndTime.Sub(summary.StartTime).Round(time.Second),
		"summary":   path,
	}
	if info, err := os.Stat(m.ResultsPath()); err == nil {
		fields["results_size"] = humanize.Bytes(uint64(info.Size()))
	}
	logger.WithFields(fields).Info("Run complete")
}
