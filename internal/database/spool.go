package database

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alloc-bench/internal/manifest"
	"alloc-bench/internal/results"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SpoolArtifact holds a run's line protocol when InfluxDB could not take it.
type SpoolArtifact struct {
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`

	RunID          string `json:"run_id"`
	Suite          string `json:"suite"`
	MatrixChecksum string `json:"matrix_checksum"`

	Lines []string `json:"lines"`
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("ALLOC_BENCH_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

// BuildSpoolArtifact renders the run's points as line protocol.
func BuildSpoolArtifact(summary *manifest.Summary, records []results.Record) *SpoolArtifact {
	points := BuildPoints(summary, records)
	lines := make([]string, 0, len(points))
	for _, p := range points {
		lines = append(lines, write.PointToLineProtocol(p, time.Nanosecond))
	}
	return &SpoolArtifact{
		Version:        1,
		CreatedAt:      time.Now(),
		RunID:          summary.RunID,
		Suite:          summary.Suite,
		MatrixChecksum: summary.MatrixChecksum,
		Lines:          lines,
	}
}

// WriteSpoolArtifact writes a gzip-compressed JSON artifact to disk atomically.
// It returns the final file path.
func WriteSpoolArtifact(dir string, artifact *SpoolArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("spool artifact is nil")
	}
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	checksum := artifact.MatrixChecksum
	if checksum == "" {
		checksum = "nocsum"
	}
	name := fmt.Sprintf(
		"run_%s_%s_%s.json.gz",
		artifact.RunID,
		artifact.CreatedAt.UTC().Format("20060102T150405Z"),
		checksum,
	)
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
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
	if err := json.NewEncoder(gz).Encode(artifact); err != nil {
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

func ReadSpoolArtifact(path string) (*SpoolArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("spool %s: %w", path, err)
	}
	defer gz.Close()

	var artifact SpoolArtifact
	if err := json.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("spool %s: %w", path, err)
	}
	return &artifact, nil
}
