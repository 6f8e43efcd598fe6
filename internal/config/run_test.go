package config

import (
	"errors"
	"testing"
)

func testSuite() *SuiteConfig {
	return &SuiteConfig{
		Suite: SuiteInfo{Name: "s"},
		Variants: []VariantConfig{
			{Name: "sys", System: true},
			{Name: "mi", Library: "libmi.so"},
		},
		Workloads: []WorkloadConfig{
			{Name: "cfrac", Command: "./cfrac 1"},
			{Name: "larson", Command: "./larson 5"},
		},
	}
}

func newRun(t *testing.T, opts RunOptions) (*RunConfiguration, error) {
	t.Helper()
	s := testSuite()
	return NewRunConfiguration(opts, s, s.VariantNames(), s.WorkloadNames())
}

func TestNewRunConfiguration_Defaults(t *testing.T) {
	rc, err := newRun(t, RunOptions{})
	if err != nil {
		t.Fatalf("NewRunConfiguration: %v", err)
	}
	if rc.Mode != ModeStat || !rc.Mode.Measuring() {
		t.Fatalf("expected stat mode, got %s", rc.Mode)
	}
	if rc.Profile != ProfileRelease {
		t.Fatalf("expected release profile, got %s", rc.Profile)
	}
	if rc.Invocations != 1 {
		t.Fatalf("expected 1 invocation, got %d", rc.Invocations)
	}
	if len(rc.Variants) != 2 || len(rc.Workloads) != 2 {
		t.Fatalf("expected every registered name, got %v / %v", rc.Variants, rc.Workloads)
	}
	if rc.ResultsDir != DefaultResultsDir || rc.ReportPath == "" {
		t.Fatalf("unexpected paths %q / %q", rc.ResultsDir, rc.ReportPath)
	}
	if len(rc.EventsOrDefault()) != len(DefaultEvents) {
		t.Fatalf("expected default events")
	}
}

func TestNewRunConfiguration_DebugAndEvents(t *testing.T) {
	rc, err := newRun(t, RunOptions{Debug: true, Events: "instructions,cycles", Invocations: 3})
	if err != nil {
		t.Fatalf("NewRunConfiguration: %v", err)
	}
	if rc.Profile != ProfileDebug {
		t.Fatalf("expected debug profile")
	}
	if len(rc.Events) != 2 || rc.Events[1] != "cycles" {
		t.Fatalf("unexpected events %v", rc.Events)
	}
	if rc.Invocations != 3 {
		t.Fatalf("expected 3 invocations, got %d", rc.Invocations)
	}
}

func TestNewRunConfiguration_SelectionIsCopied(t *testing.T) {
	sel := []string{"mi"}
	rc, err := newRun(t, RunOptions{Variants: sel})
	if err != nil {
		t.Fatalf("NewRunConfiguration: %v", err)
	}
	sel[0] = "changed"
	if rc.Variants[0] != "mi" {
		t.Fatalf("run configuration aliases caller slice")
	}
}

func TestNewRunConfiguration_SingletonModes(t *testing.T) {
	cases := []struct {
		name string
		opts RunOptions
		ok   bool
	}{
		{"record with all variants", RunOptions{Record: true, Workloads: []string{"cfrac"}}, false},
		{"interactive with two variants", RunOptions{Interactive: true, Variants: []string{"sys", "mi"}, Workloads: []string{"cfrac"}}, false},
		{"record with two invocations", RunOptions{Record: true, Variants: []string{"mi"}, Workloads: []string{"cfrac"}, Invocations: 2}, false},
		{"record with two events", RunOptions{Record: true, Variants: []string{"mi"}, Workloads: []string{"cfrac"}, Events: "a,b"}, false},
		{"record singleton", RunOptions{Record: true, Variants: []string{"mi"}, Workloads: []string{"cfrac"}, Events: "cycles"}, true},
		{"interactive singleton", RunOptions{Interactive: true, Variants: []string{"mi"}, Workloads: []string{"cfrac"}}, true},
		{"two modes", RunOptions{Record: true, Test: true, Variants: []string{"mi"}, Workloads: []string{"cfrac"}}, false},
		{"test mode with matrix", RunOptions{Test: true}, true},
		{"negative invocations", RunOptions{Invocations: -1}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newRun(t, tc.opts)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigurationError, got %v", err)
				}
			}
		})
	}
}

func TestNewRunConfiguration_SuiteEventsDoNotBindSingletonModes(t *testing.T) {
	s := testSuite()
	s.Suite.Events = "page-faults,cache-misses"

	for _, opts := range []RunOptions{
		{Record: true, Variants: []string{"mi"}, Workloads: []string{"cfrac"}},
		{Interactive: true, Variants: []string{"mi"}, Workloads: []string{"cfrac"}},
	} {
		rc, err := NewRunConfiguration(opts, s, s.VariantNames(), s.WorkloadNames())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", modeOf(opts), err)
		}
		if len(rc.Events) != 0 {
			t.Fatalf("%s: suite events leaked into explicit events %v", rc.Mode, rc.Events)
		}
	}

	rc, err := NewRunConfiguration(RunOptions{}, s, s.VariantNames(), s.WorkloadNames())
	if err != nil {
		t.Fatalf("NewRunConfiguration: %v", err)
	}
	if got := rc.EventsOrDefault(); len(got) != 2 || got[0] != "page-faults" {
		t.Fatalf("stat mode should sample the suite events, got %v", got)
	}
}

func TestNewRunConfiguration_BuildMayStartWithoutVariants(t *testing.T) {
	s := testSuite()
	if _, err := NewRunConfiguration(RunOptions{Build: true}, s, nil, s.WorkloadNames()); err != nil {
		t.Fatalf("build run rejected before discovery: %v", err)
	}
	if _, err := NewRunConfiguration(RunOptions{}, s, nil, s.WorkloadNames()); err == nil {
		t.Fatalf("expected an error without variants")
	}
}

func modeOf(opts RunOptions) string {
	if opts.Record {
		return "record"
	}
	return "interactive"
}
