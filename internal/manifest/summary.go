package manifest

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"alloc-bench/internal/host"
)

// CellFailure records one cell that produced no result row.
type CellFailure struct {
	Workload   string `json:"workload"`
	Variant    string `json:"variant"`
	Invocation int    `json:"invocation"`
	Error      string `json:"error"`
}

// Summary is written once a run has executed every cell. Its presence is
// the run-completion marker readers check before aggregating.
type Summary struct {
	Version int `json:"version"`

	RunID          string `json:"run_id"`
	Suite          string `json:"suite"`
	MatrixChecksum string `json:"matrix_checksum"`
	Mode           string `json:"mode"`
	Profile        string `json:"profile"`

	Variants    []string `json:"variants"`
	Workloads   []string `json:"workloads"`
	Invocations int      `json:"invocations"`
	Events      []string `json:"events"`

	// Sessions counts the runs resumed into this directory.
	Sessions  int           `json:"sessions"`
	Cells     int           `json:"cells"`
	Succeeded int           `json:"succeeded"`
	Failures  []CellFailure `json:"failures,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Host          *host.HostConfig `json:"host,omitempty"`
	ConfigContent string           `json:"config_content,omitempty"`
}

// Merge folds the summary of an earlier session of the same run into s, so a
// resumed run reports every cell it executed.
func (s *Summary) Merge(prev *Summary) {
	if prev == nil {
		return
	}
	sessions := prev.Sessions
	if sessions == 0 {
		sessions = 1
	}
	if s.Sessions == 0 {
		s.Sessions = 1
	}
	s.Sessions += sessions

	s.Cells += prev.Cells
	s.Succeeded += prev.Succeeded
	s.Failures = append(append([]CellFailure(nil), prev.Failures...), s.Failures...)
	s.Variants = union(prev.Variants, s.Variants)
	s.Workloads = union(prev.Workloads, s.Workloads)
	if !prev.StartTime.IsZero() && prev.StartTime.Before(s.StartTime) {
		s.StartTime = prev.StartTime
	}
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, name := range append(append([]string(nil), a...), b...) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// WriteSummary writes a gzip-compressed JSON summary into dir atomically.
// It returns the final file path.
func WriteSummary(dir string, summary *Summary) (string, error) {
	if summary == nil {
		return "", fmt.Errorf("summary is nil")
	}
	if summary.Version == 0 {
		summary.Version = 1
	}
	finalPath := filepath.Join(dir, SummaryFile)

	tmp, err := os.CreateTemp(dir, SummaryFile+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

func ReadSummary(dir string) (*Summary, error) {
	f, err := os.Open(filepath.Join(dir, SummaryFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary: %w", err)
	}
	defer gz.Close()

	var s Summary
	if err := json.NewDecoder(gz).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &s, nil
}

// IsComplete reports whether the run in dir has finished.
func IsComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, SummaryFile))
	return err == nil
}
