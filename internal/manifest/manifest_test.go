package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunIdentity_String(t *testing.T) {
	started := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	id := NewRunIdentity("bench-01.lab", started)
	if got := id.String(); got != "bench-01.lab-20240309-140507" {
		t.Fatalf("unexpected id %q", got)
	}

	odd := NewRunIdentity("a/b c", started)
	if got := odd.String(); strings.ContainsAny(got, "/ ") {
		t.Fatalf("id not sanitized: %q", got)
	}
}

func TestOpen_CreatesLayoutAndLatest(t *testing.T) {
	root := t.TempDir()

	m, err := Open(root, "host-20240101-000000")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(m.Dir, MarkerFile))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if strings.TrimSpace(string(data)) != m.ID {
		t.Fatalf("marker holds %q, want %q", data, m.ID)
	}

	if got := m.LogPath("cfrac", "mi"); got != filepath.Join(m.Dir, "cfrac.mi.log") {
		t.Fatalf("unexpected log path %q", got)
	}
	if got := m.ResultsPath(); got != filepath.Join(m.Dir, ResultsFile) {
		t.Fatalf("unexpected results path %q", got)
	}

	latest, err := LatestID(root)
	if err != nil {
		t.Fatalf("LatestID: %v", err)
	}
	if latest != m.ID {
		t.Fatalf("latest = %q, want %q", latest, m.ID)
	}
}

func TestOpen_LatestFollowsMostRecentlyStarted(t *testing.T) {
	root := t.TempDir()

	first, err := Open(root, "host-20240101-000000")
	if err != nil {
		t.Fatalf("Open(first): %v", err)
	}
	second, err := Open(root, "host-20240101-000100")
	if err != nil {
		t.Fatalf("Open(second): %v", err)
	}

	// The first run finishing later must not move the pointer back.
	if _, err := WriteSummary(first.Dir, &Summary{RunID: first.ID}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	dir, err := ResolveRunDir(root, "")
	if err != nil {
		t.Fatalf("ResolveRunDir: %v", err)
	}
	if dir != second.Dir {
		t.Fatalf("latest resolves to %q, want %q", dir, second.Dir)
	}

	dir, err = ResolveRunDir(root, first.ID)
	if err != nil || dir != first.Dir {
		t.Fatalf("ResolveRunDir(first) = %q, %v", dir, err)
	}
}

func TestOpen_ReenterIsIdempotent(t *testing.T) {
	root := t.TempDir()
	if _, err := Open(root, "host-20240101-000000"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := Open(root, "host-20240101-000000"); err != nil {
		t.Fatalf("re-Open: %v", err)
	}
}

func TestOpen_RejectsBadIDs(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"", "latest", "a" + string(filepath.Separator) + "b"} {
		if _, err := Open(root, id); err == nil {
			t.Fatalf("expected error for id %q", id)
		}
	}
}

func TestResolveRunDir_Missing(t *testing.T) {
	root := t.TempDir()
	if _, err := ResolveRunDir(root, ""); err == nil {
		t.Fatalf("expected error without latest pointer")
	}
	if _, err := ResolveRunDir(root, "nope"); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestSummary_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	if IsComplete(dir) {
		t.Fatalf("empty dir reported complete")
	}

	in := &Summary{
		RunID:       "host-20240101-000000",
		Suite:       "mimalloc-bench",
		Variants:    []string{"sys", "mi"},
		Workloads:   []string{"cfrac"},
		Invocations: 2,
		Cells:       4,
		Succeeded:   3,
		Failures:    []CellFailure{{Workload: "cfrac", Variant: "mi", Invocation: 1, Error: "exit status 1"}},
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC),
	}

	path, err := WriteSummary(dir, in)
	if err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	if filepath.Base(path) != SummaryFile {
		t.Fatalf("unexpected summary path %q", path)
	}
	if !IsComplete(dir) {
		t.Fatalf("expected run to be complete")
	}

	out, err := ReadSummary(dir)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if out.Version != 1 || out.RunID != in.RunID || out.Cells != 4 || len(out.Failures) != 1 {
		t.Fatalf("unexpected summary %+v", out)
	}
	if !out.EndTime.Equal(in.EndTime) {
		t.Fatalf("end time %v, want %v", out.EndTime, in.EndTime)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}
