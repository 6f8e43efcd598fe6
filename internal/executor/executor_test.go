package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"alloc-bench/internal/command"
	"alloc-bench/internal/config"
	"alloc-bench/internal/logging"
	"alloc-bench/internal/registry"
)

const fakePerf = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    --) shift; break ;;
    *) shift ;;
  esac
done
"$@"
status=$?
if [ -n "$out" ]; then
  if [ -n "$FAKE_PERF_REPORT" ]; then
    printf '%s\n' "$FAKE_PERF_REPORT" > "$out"
  else
    printf '# started on Thu Jan  1 00:00:00 1970\n\n1234,,cache-misses,100,100.00,,\n5678,,cache-references,100,100.00,,\n' > "$out"
  fi
fi
exit $status
`

type dirLayout string

func (d dirLayout) LogPath(workload, variant string) string {
	return filepath.Join(string(d), workload+"."+variant+".log")
}

type fixture struct {
	exec     *Executor
	composer *command.Composer
	logDir   string
	report   string
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake sampling tool is a shell script")
	}
	logging.SetMarkerOutput(io.Discard)

	dir := t.TempDir()
	perf := filepath.Join(dir, "perf")
	if err := os.WriteFile(perf, []byte(fakePerf), 0o755); err != nil {
		t.Fatalf("write fake perf: %v", err)
	}
	report := filepath.Join(dir, "report.csv")
	logDir := filepath.Join(dir, "logs")

	rc := &config.RunConfiguration{Mode: config.ModeStat, Perf: perf, ReportPath: report}
	return &fixture{
		exec:     New(dirLayout(logDir), report, timeout),
		composer: command.NewComposer(rc),
		logDir:   logDir,
		report:   report,
	}
}

func (f *fixture) compose(t *testing.T, script string) command.Command {
	t.Helper()
	cmd, err := f.composer.Compose(command.Invocation{
		Variant:  registry.Variant{Name: "sys", Activation: registry.Activation{Kind: registry.System}},
		Workload: registry.Workload{Name: "w", Argv: []string{"sh", "-c", script}},
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return cmd
}

func (f *fixture) log(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(dirLayout(f.logDir).LogPath("w", "sys"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestMeasure_Success(t *testing.T) {
	f := newFixture(t, 0)
	cell := Cell{Workload: "w", Variant: "sys", Invocation: 0}

	rec, err := f.exec.Measure(context.Background(), cell, f.compose(t, `echo "hello from $SYSMALLOC"`))
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if rec.Workload != "w" || rec.Variant != "sys" || rec.Invocation != 0 {
		t.Fatalf("unexpected identity %+v", rec)
	}
	if v, ok := rec.Value("cache-misses"); !ok || v != 1234 {
		t.Fatalf("cache-misses = %v, %v", v, ok)
	}
	if names := rec.MetricNames(); len(names) != 2 || names[1] != "cache-references" {
		t.Fatalf("unexpected metrics %v", names)
	}

	log := f.log(t)
	for _, want := range []string{"Invocation #0", "stat --no-scale", "hello from 1", "1234,,cache-misses"} {
		if !strings.Contains(log, want) {
			t.Fatalf("log missing %q:\n%s", want, log)
		}
	}
	if strings.Contains(log, "started on") {
		t.Fatalf("report preamble leaked into log:\n%s", log)
	}
	if _, err := os.Stat(f.report); !os.IsNotExist(err) {
		t.Fatalf("report should be removed after the cell, stat err = %v", err)
	}
}

func TestMeasure_FailureIsRecordedInLog(t *testing.T) {
	f := newFixture(t, 0)
	cell := Cell{Workload: "w", Variant: "sys", Invocation: 2}

	rec, err := f.exec.Measure(context.Background(), cell, f.compose(t, "exit 3"))
	if rec != nil {
		t.Fatalf("failed cell must not produce a record")
	}
	var failure *ExecutionFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ExecutionFailure, got %v", err)
	}
	if failure.ExitCode != 3 {
		t.Fatalf("exit code = %d", failure.ExitCode)
	}

	log := f.log(t)
	if !strings.Contains(log, "Invocation #2") || !strings.Contains(log, ErrorMarker) {
		t.Fatalf("log lacks header or error marker:\n%s", log)
	}
	if _, err := os.Stat(f.report); !os.IsNotExist(err) {
		t.Fatalf("report should be removed on failure too")
	}

	// The next cell still runs and appends to the same log.
	if _, err := f.exec.Measure(context.Background(), Cell{Workload: "w", Variant: "sys", Invocation: 3}, f.compose(t, "true")); err != nil {
		t.Fatalf("measure after failure: %v", err)
	}
	if !strings.Contains(f.log(t), "Invocation #3") {
		t.Fatalf("second cell missing from log")
	}
}

func TestMeasure_AllowFailure(t *testing.T) {
	f := newFixture(t, 0)
	cell := Cell{Workload: "w", Variant: "sys", AllowFailure: true}

	rec, err := f.exec.Measure(context.Background(), cell, f.compose(t, "exit 1"))
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record")
	}
	if strings.Contains(f.log(t), ErrorMarker) {
		t.Fatalf("accepted exit must not be marked as error")
	}
}

func TestMeasure_NotCountedIsParseFailure(t *testing.T) {
	f := newFixture(t, 0)
	t.Setenv("FAKE_PERF_REPORT", "<not counted>,,cache-misses,0,0.00,,")

	_, err := f.exec.Measure(context.Background(), Cell{Workload: "w", Variant: "sys"}, f.compose(t, "true"))
	var failure *ParseFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ParseFailure, got %v", err)
	}
	if !strings.Contains(f.log(t), ErrorMarker) {
		t.Fatalf("parse failure must be marked in the log")
	}
}

func TestMeasure_MissingReport(t *testing.T) {
	f := newFixture(t, 0)
	cmd := command.Command{Program: "sh", Args: []string{"-c", "true"}}

	_, err := f.exec.Measure(context.Background(), Cell{Workload: "w", Variant: "sys"}, cmd)
	var failure *ParseFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ParseFailure, got %v", err)
	}
	if failure.Reason != "report missing" {
		t.Fatalf("unexpected reason %q", failure.Reason)
	}
}

func TestMeasure_StaleReportIsNeverRead(t *testing.T) {
	f := newFixture(t, 0)
	if err := os.WriteFile(f.report, []byte("1,,stale,1,100.00,,\n"), 0o644); err != nil {
		t.Fatalf("write stale report: %v", err)
	}
	cmd := command.Command{Program: "sh", Args: []string{"-c", "true"}}

	if _, err := f.exec.Measure(context.Background(), Cell{Workload: "w", Variant: "sys"}, cmd); err == nil {
		t.Fatalf("expected failure, stale report must have been discarded")
	}
}

func TestMeasure_Timeout(t *testing.T) {
	f := newFixture(t, 0)
	cell := Cell{Workload: "w", Variant: "sys", Timeout: 100 * time.Millisecond}

	started := time.Now()
	_, err := f.exec.Measure(context.Background(), cell, command.Command{Program: "sleep", Args: []string{"5"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(started) > 4*time.Second {
		t.Fatalf("process was not killed on timeout")
	}
}

func TestMeasure_TimeoutKillsWrappedWorkload(t *testing.T) {
	f := newFixture(t, 0)
	marker := filepath.Join(t.TempDir(), "still-running")
	cell := Cell{Workload: "w", Variant: "sys", Timeout: 200 * time.Millisecond}

	_, err := f.exec.Measure(context.Background(), cell, f.compose(t, "sleep 1; touch "+marker))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	time.Sleep(2 * time.Second)
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("workload kept running after its cell timed out")
	}
}

func TestHook_AppendsToLog(t *testing.T) {
	f := newFixture(t, 0)
	cell := Cell{Workload: "w", Variant: "sys"}

	if err := f.exec.Hook(context.Background(), cell, command.Command{Program: "sh", Args: []string{"-c", "echo cleaned"}}); err != nil {
		t.Fatalf("hook: %v", err)
	}
	log := f.log(t)
	if !strings.Contains(log, "Hook: sh -c") || !strings.Contains(log, "cleaned") {
		t.Fatalf("hook output missing:\n%s", log)
	}

	err := f.exec.Hook(context.Background(), cell, command.Command{Program: "sh", Args: []string{"-c", "exit 1"}})
	var failure *ExecutionFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ExecutionFailure, got %v", err)
	}
}

func TestRun_UsesTerminalStreams(t *testing.T) {
	f := newFixture(t, 0)
	var out bytes.Buffer
	f.exec.Stdout = &out
	f.exec.Stdin = strings.NewReader("")

	cmd := command.Command{Program: "sh", Args: []string{"-c", `echo "$SYSMALLOC"`}, Env: []string{registry.SystemMarker}}
	if err := f.exec.Run(context.Background(), cmd); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out.String()) != "1" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRun_StdinFromFile(t *testing.T) {
	f := newFixture(t, 0)
	input := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(input, []byte("from file\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	var out bytes.Buffer
	f.exec.Stdout = &out

	if err := f.exec.Run(context.Background(), command.Command{Program: "cat", Stdin: input}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "from file\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
