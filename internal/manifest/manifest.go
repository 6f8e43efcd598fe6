package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alloc-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

const (
	LatestLink  = "latest"
	MarkerFile  = "RUN_ID"
	ResultsFile = "results.csv"
	SummaryFile = "summary.json.gz"

	idTimeLayout = "20060102-150405"
)

// RunIdentity names one top-level invocation of the engine.
type RunIdentity struct {
	Host    string
	Started time.Time
}

func NewRunIdentity(host string, started time.Time) RunIdentity {
	return RunIdentity{Host: host, Started: started}
}

// String returns "<host>-<YYYYMMDD-HHMMSS>", safe to use as a directory name.
func (id RunIdentity) String() string {
	host := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, id.Host)
	if host == "" {
		host = "unknown"
	}
	return host + "-" + id.Started.Format(idTimeLayout)
}

// Manifest is the on-disk state of one run.
type Manifest struct {
	ID   string
	Root string
	Dir  string
}

// Open creates (or re-enters) the run directory, records the run id in it and
// points <root>/latest at it. Re-entering an existing directory is how an
// interrupted run is resumed.
func Open(root, id string) (*Manifest, error) {
	logger := logging.GetLogger()

	if id == "" || strings.ContainsRune(id, filepath.Separator) || id == LatestLink {
		return nil, fmt.Errorf("invalid run id %q", id)
	}

	m := &Manifest{
		ID:   id,
		Root: root,
		Dir:  filepath.Join(root, id),
	}

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.Dir, MarkerFile), []byte(id+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write run marker: %w", err)
	}

	if err := pointLatest(root, id); err != nil {
		return nil, fmt.Errorf("failed to update latest pointer: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"run_id": id,
		"dir":    m.Dir,
	}).Debug("Run manifest opened")

	return m, nil
}

func (m *Manifest) ResultsPath() string {
	return filepath.Join(m.Dir, ResultsFile)
}

// LogPath is the append-only log shared by every invocation of one (workload, variant) pair.
func (m *Manifest) LogPath(workload, variant string) string {
	return filepath.Join(m.Dir, fmt.Sprintf("%s.%s.log", workload, variant))
}

// pointLatest replaces <root>/latest atomically. Where symlinks are not
// available a plain file holding the run id is written instead.
func pointLatest(root, id string) error {
	latest := filepath.Join(root, LatestLink)
	tmp := filepath.Join(root, fmt.Sprintf(".%s.%d", LatestLink, os.Getpid()))
	_ = os.Remove(tmp)

	if err := os.Symlink(id, tmp); err != nil {
		return os.WriteFile(latest, []byte(id+"\n"), 0o644)
	}
	if err := os.Rename(tmp, latest); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// LatestID returns the id the latest pointer references.
func LatestID(root string) (string, error) {
	latest := filepath.Join(root, LatestLink)
	if target, err := os.Readlink(latest); err == nil {
		return filepath.Base(target), nil
	}
	data, err := os.ReadFile(latest)
	if err != nil {
		return "", fmt.Errorf("no latest run under %s: %w", root, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ResolveRunDir returns the directory of run id, or of the latest run when id is empty.
func ResolveRunDir(root, id string) (string, error) {
	if id == "" {
		latest, err := LatestID(root)
		if err != nil {
			return "", err
		}
		id = latest
	}
	dir := filepath.Join(root, id)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("run %s not found: %w", id, err)
	}
	return dir, nil
}
