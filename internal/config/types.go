package config

import (
	"strings"
	"time"
)

type SuiteConfig struct {
	Suite     SuiteInfo        `yaml:"suite"`
	Variants  []VariantConfig  `yaml:"variants"`
	Workloads []WorkloadConfig `yaml:"workloads"`
}

type SuiteInfo struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	LogLevel    string      `yaml:"log_level"`
	Results     string      `yaml:"results"`
	Events      string      `yaml:"events"`
	Discover    string      `yaml:"discover,omitempty"`
	Tools       ToolsConfig `yaml:"tools"`
	Build       BuildConfig `yaml:"build"`
	Data        DataConfig  `yaml:"data"`
}

type ToolsConfig struct {
	Perf       string `yaml:"perf"`
	Debugger   string `yaml:"debugger"`
	ReportPath string `yaml:"report_path"`
	TracePath  string `yaml:"trace_path"`
}

type BuildConfig struct {
	Command      string `yaml:"command"`
	DebugCommand string `yaml:"debug_command"`
	Dir          string `yaml:"dir"`
}

type DataConfig struct {
	DB *DatabaseConfig `yaml:"db,omitempty"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Org      string `yaml:"org"`
}

type VariantConfig struct {
	Name    string `yaml:"name"`
	Library string `yaml:"library,omitempty"`
	System  bool   `yaml:"system,omitempty"`
}

type WorkloadConfig struct {
	Name         string   `yaml:"name"`
	Command      string   `yaml:"command"`
	Dir          string   `yaml:"dir,omitempty"`
	Input        string   `yaml:"input,omitempty"`
	Pre          []string `yaml:"pre,omitempty"`
	Post         []string `yaml:"post,omitempty"`
	AllowFailure bool     `yaml:"allow_failure,omitempty"`
	Timeout      string   `yaml:"timeout,omitempty"`
}

const (
	DefaultResultsDir = "_logs"
	DefaultPerf       = "perf"
	DefaultDebugger   = "gdb"
	DefaultTracePath  = "perf.data"
)

// DefaultEvents is the sampling set used when neither the suite nor the
// command line names one.
var DefaultEvents = []string{"page-faults", "dTLB-loads", "dTLB-load-misses", "cache-misses", "cache-references"}

func (c *SuiteConfig) GetResultsDir() string {
	if c.Suite.Results == "" {
		return DefaultResultsDir
	}
	return c.Suite.Results
}

func (c *SuiteConfig) GetPerf() string {
	if c.Suite.Tools.Perf == "" {
		return DefaultPerf
	}
	return c.Suite.Tools.Perf
}

func (c *SuiteConfig) GetDebugger() string {
	if c.Suite.Tools.Debugger == "" {
		return DefaultDebugger
	}
	return c.Suite.Tools.Debugger
}

func (c *SuiteConfig) GetTracePath() string {
	if c.Suite.Tools.TracePath == "" {
		return DefaultTracePath
	}
	return c.Suite.Tools.TracePath
}

// GetEvents returns the suite's event list, nil when the suite leaves it to the defaults.
func (c *SuiteConfig) GetEvents() []string {
	return SplitEvents(c.Suite.Events)
}

func (c *SuiteConfig) VariantNames() []string {
	names := make([]string, 0, len(c.Variants))
	for _, v := range c.Variants {
		names = append(names, v.Name)
	}
	return names
}

func (c *SuiteConfig) WorkloadNames() []string {
	names := make([]string, 0, len(c.Workloads))
	for _, w := range c.Workloads {
		names = append(names, w.Name)
	}
	return names
}

func (w *WorkloadConfig) GetTimeout() (time.Duration, error) {
	if w.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(w.Timeout)
}

// SplitEvents turns "a,b, c" into its non-empty elements.
func SplitEvents(events string) []string {
	var out []string
	for _, e := range strings.Split(events, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
