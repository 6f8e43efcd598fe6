package config

import (
	"os"
	"path/filepath"
	"time"
)

// Mode selects how each cell is wrapped.
type Mode int

const (
	ModeStat Mode = iota
	ModeRecord
	ModeTest
	ModeInteractive
)

func (m Mode) String() string {
	switch m {
	case ModeStat:
		return "stat"
	case ModeRecord:
		return "record"
	case ModeTest:
		return "test"
	case ModeInteractive:
		return "interactive"
	default:
		return "unknown"
	}
}

// Measuring reports whether cells in this mode produce result rows.
func (m Mode) Measuring() bool {
	return m == ModeStat
}

type Profile string

const (
	ProfileRelease Profile = "release"
	ProfileDebug   Profile = "debug"
)

// RunOptions are the raw command line choices for one run.
type RunOptions struct {
	Variants    []string
	Workloads   []string
	Invocations int
	Events      string
	Build       bool
	Debug       bool
	Test        bool
	Record      bool
	Interactive bool
	Timeout     time.Duration
	ResultsDir  string
}

// RunConfiguration is built once per run and shared read-only by every
// component. Nothing mutates it after NewRunConfiguration returns.
type RunConfiguration struct {
	Mode        Mode
	Profile     Profile
	Variants    []string
	Workloads   []string
	Invocations int
	// Events holds only the events given on the command line.
	Events      []string
	SuiteEvents []string
	// AllVariants is set when no variant was named, so a build step may
	// widen the selection with freshly discovered libraries.
	AllVariants bool
	Build       bool
	Timeout     time.Duration
	ResultsDir  string
	ReportPath  string
	TracePath   string
	Perf        string
	Debugger    string
}

// NewRunConfiguration merges command line options over the suite file.
// Empty selections default to every registered name.
func NewRunConfiguration(opts RunOptions, suite *SuiteConfig, variants, workloads []string) (*RunConfiguration, error) {
	modes := 0
	mode := ModeStat
	if opts.Test {
		modes++
		mode = ModeTest
	}
	if opts.Record {
		modes++
		mode = ModeRecord
	}
	if opts.Interactive {
		modes++
		mode = ModeInteractive
	}
	if modes > 1 {
		return nil, Errorf("test, record and interactive modes are mutually exclusive")
	}

	rc := &RunConfiguration{
		Mode:        mode,
		Profile:     ProfileRelease,
		Variants:    append([]string(nil), opts.Variants...),
		Workloads:   append([]string(nil), opts.Workloads...),
		Invocations: opts.Invocations,
		Events:      SplitEvents(opts.Events),
		SuiteEvents: suite.GetEvents(),
		AllVariants: len(opts.Variants) == 0,
		Build:       opts.Build,
		Timeout:     opts.Timeout,
		ResultsDir:  opts.ResultsDir,
		ReportPath:  suite.Suite.Tools.ReportPath,
		TracePath:   suite.GetTracePath(),
		Perf:        suite.GetPerf(),
		Debugger:    suite.GetDebugger(),
	}
	if opts.Debug {
		rc.Profile = ProfileDebug
	}
	if len(rc.Variants) == 0 {
		rc.Variants = append([]string(nil), variants...)
	}
	if len(rc.Workloads) == 0 {
		rc.Workloads = append([]string(nil), workloads...)
	}
	if rc.Invocations == 0 {
		rc.Invocations = 1
	}
	if rc.ResultsDir == "" {
		rc.ResultsDir = suite.GetResultsDir()
	}
	if rc.ReportPath == "" {
		rc.ReportPath = filepath.Join(os.TempDir(), "alloc-bench-perf-stat.csv")
	}

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}

// Validate checks the combination of mode and selection.
func (rc *RunConfiguration) Validate() error {
	if rc.Invocations < 1 {
		return Errorf("invocation count must be at least 1, got %d", rc.Invocations)
	}
	if len(rc.Variants) == 0 && !(rc.Build && rc.AllVariants) {
		return Errorf("no variants selected")
	}
	if len(rc.Workloads) == 0 {
		return Errorf("no workloads selected")
	}
	if rc.Timeout < 0 {
		return Errorf("timeout must not be negative")
	}

	if rc.Mode == ModeRecord || rc.Mode == ModeInteractive {
		if len(rc.Variants) != 1 || len(rc.Workloads) != 1 || rc.Invocations != 1 {
			return Errorf("%s mode requires exactly one variant, one workload and one invocation (got %d, %d, %d)",
				rc.Mode, len(rc.Variants), len(rc.Workloads), rc.Invocations)
		}
		if len(rc.Events) > 1 {
			return Errorf("%s mode accepts at most one event, got %d", rc.Mode, len(rc.Events))
		}
	}
	return nil
}

// EventsOrDefault returns the command line events, else the suite's, else DefaultEvents.
func (rc *RunConfiguration) EventsOrDefault() []string {
	if len(rc.Events) > 0 {
		return rc.Events
	}
	if len(rc.SuiteEvents) > 0 {
		return rc.SuiteEvents
	}
	return DefaultEvents
}
