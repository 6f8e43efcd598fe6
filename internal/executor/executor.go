package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"alloc-bench/internal/command"
	"alloc-bench/internal/logging"
	"alloc-bench/internal/results"

	"github.com/sirupsen/logrus"
)

// ErrorMarker starts the line written into a cell's log when it fails.
const ErrorMarker = "!!! ERROR"

// LogLayout maps a (workload, variant) pair to its append-only log file.
type LogLayout interface {
	LogPath(workload, variant string) string
}

type Executor struct {
	logs    LogLayout
	slot    *reportSlot
	timeout time.Duration

	// Terminal streams used by Run.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New returns an executor whose measured cells log through logs and whose
// sampling tool writes to reportPath. A zero timeout waits indefinitely.
func New(logs LogLayout, reportPath string, timeout time.Duration) *Executor {
	return &Executor{
		logs:    logs,
		slot:    newReportSlot(reportPath),
		timeout: timeout,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Measure runs one stat-mode cell and returns its record. Failures come
// back as *ExecutionFailure or *ParseFailure after being written to the
// cell's log; the caller decides whether to continue.
func (e *Executor) Measure(ctx context.Context, cell Cell, cmd command.Command) (*results.Record, error) {
	logger := logging.GetLogger().WithFields(logrus.Fields{
		"bench":      cell.Workload,
		"variant":    cell.Variant,
		"invocation": cell.Invocation,
	})

	if err := e.slot.acquire(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire report path: %w", err)
	}
	defer func() {
		if err := e.slot.release(); err != nil {
			logger.WithError(err).Warn("Failed to remove sampling report")
		}
	}()

	logFile, err := e.openLog(cell)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	cmdline := cmd.String()
	if _, err := fmt.Fprintf(logFile, "Invocation #%d\n%s\n", cell.Invocation, cmdline); err != nil {
		return nil, fmt.Errorf("failed to write log header: %w", err)
	}
	logging.Command(cmdline)

	started := time.Now()
	runErr := e.spawn(ctx, e.timeoutFor(cell), cmd, logFile, logFile, nil, true)
	elapsed := time.Since(started)

	if runErr != nil {
		failure := e.executionFailure(cell, cmdline, runErr)
		if !cell.AllowFailure || failure.ExitCode <= 0 {
			e.markFailure(logFile, failure)
			logger.WithError(failure).Warn("Cell failed")
			return nil, failure
		}
		logger.WithField("exit_code", failure.ExitCode).Debug("Non-zero exit accepted for workload")
	}

	data, err := os.ReadFile(e.slot.path)
	if err != nil {
		failure := &ParseFailure{Cell: cell, Report: e.slot.path, Reason: "report missing", Err: err}
		e.markFailure(logFile, failure)
		logger.WithError(failure).Warn("Cell produced no report")
		return nil, failure
	}

	metrics, raw, err := parseReport(string(data))
	for _, line := range raw {
		fmt.Fprintln(logFile, line)
	}
	if err != nil {
		failure := &ParseFailure{Cell: cell, Report: e.slot.path, Reason: "malformed report", Err: err}
		e.markFailure(logFile, failure)
		logger.WithError(failure).Warn("Cell report could not be parsed")
		return nil, failure
	}

	logger.WithFields(logrus.Fields{
		"elapsed": elapsed.Round(time.Millisecond),
		"metrics": len(metrics),
	}).Info("Cell measured")

	return &results.Record{
		Invocation: cell.Invocation,
		Workload:   cell.Workload,
		Variant:    cell.Variant,
		Metrics:    metrics,
	}, nil
}

// Hook runs an unmeasured command for a cell, appending its output to the cell's log.
func (e *Executor) Hook(ctx context.Context, cell Cell, cmd command.Command) error {
	logFile, err := e.openLog(cell)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmdline := cmd.String()
	if _, err := fmt.Fprintf(logFile, "Hook: %s\n", cmdline); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	logging.Command(cmdline)

	if err := e.spawn(ctx, e.timeoutFor(cell), cmd, logFile, logFile, nil, true); err != nil {
		failure := e.executionFailure(cell, cmdline, err)
		e.markFailure(logFile, failure)
		return failure
	}
	return nil
}

// Run executes a command attached to the executor's terminal streams.
// Used for tracing, direct and interactive modes, which write no log and no record.
func (e *Executor) Run(ctx context.Context, cmd command.Command) error {
	cmdline := cmd.String()
	logging.Command(cmdline)

	if err := e.spawn(ctx, e.timeout, cmd, e.Stdout, e.Stderr, e.Stdin, false); err != nil {
		failure := e.executionFailure(Cell{}, cmdline, err)
		logging.Failure("%s", failure.Error())
		return failure
	}
	return nil
}

func (e *Executor) openLog(cell Cell) (*os.File, error) {
	path := e.logs.LogPath(cell.Workload, cell.Variant)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	return f, nil
}

func (e *Executor) markFailure(log io.Writer, failure error) {
	fmt.Fprintf(log, "%s: %v\n", ErrorMarker, failure)
	logging.Failure("%v", failure)
}

func (e *Executor) executionFailure(cell Cell, cmdline string, err error) *ExecutionFailure {
	failure := &ExecutionFailure{Cell: cell, Command: cmdline, ExitCode: -1, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.ExitCode = exitErr.ExitCode()
	}
	return failure
}

func (e *Executor) timeoutFor(cell Cell) time.Duration {
	if cell.Timeout > 0 {
		return cell.Timeout
	}
	return e.timeout
}

// spawn starts cmd and waits for it, killing the process when ctx or the
// timeout expires. stdin is used only when cmd names no input file. A grouped
// process runs in its own process group and is killed with everything it
// started; terminal-attached commands stay in the foreground group.
func (e *Executor) spawn(ctx context.Context, timeout time.Duration, cmd command.Command, stdout, stderr io.Writer, stdin io.Reader, grouped bool) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	proc := exec.Command(cmd.Program, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = append(os.Environ(), cmd.Env...)
	proc.Stdout = stdout
	proc.Stderr = stderr
	proc.Stdin = stdin
	proc.WaitDelay = time.Second
	if grouped {
		isolate(proc)
	}

	if cmd.Stdin != "" {
		input, err := os.Open(cmd.Stdin)
		if err != nil {
			return fmt.Errorf("failed to open input %s: %w", cmd.Stdin, err)
		}
		defer input.Close()
		proc.Stdin = input
	}

	if err := proc.Start(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- proc.Wait()
	}()

	select {
	case <-ctx.Done():
		if err := killTree(proc); err != nil {
			logging.GetLogger().WithError(err).Warn("Failed to kill process")
		}
		<-errChan
		return fmt.Errorf("command %s terminated: %w", cmd.Program, ctx.Err())
	case err := <-errChan:
		return err
	}
}
