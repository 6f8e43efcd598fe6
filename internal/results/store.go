package results

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"alloc-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// Store appends records to a run's results file. Whether the header has
// been written is derived from the file itself, so a process resuming
// into an existing run directory never writes it twice.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Append writes one data row, preceded by the header when the file is new.
// A record whose columns differ from the existing header is rejected.
func (s *Store) Append(rec *Record) error {
	logger := logging.GetLogger()

	header := rec.Header()
	existing, err := readHeader(s.path)
	if err != nil {
		return fmt.Errorf("failed to read results header: %w", err)
	}
	if existing != nil && !equalColumns(existing, header) {
		return fmt.Errorf("record columns %v do not match results header %v", header, existing)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open results file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if existing == nil {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	if err := writer.Write(rec.row()); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"bench":      rec.Workload,
		"variant":    rec.Variant,
		"invocation": rec.Invocation,
		"metrics":    len(rec.Metrics),
	}).Debug("Appended record")

	return nil
}

func (r *Record) row() []string {
	row := []string{strconv.Itoa(r.Invocation), r.Workload, r.Variant}
	for _, m := range r.Metrics {
		row = append(row, strconv.FormatFloat(m.Value, 'f', -1, 64))
	}
	return row
}

// readHeader returns nil when the file does not exist or is still empty.
func readHeader(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	line, err := bufio.NewReader(file).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, nil
	}
	header, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return nil, err
	}
	return header, nil
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Load reads every record back from a results file.
func Load(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Read(file)
}

func Read(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 3 || header[0] != ColInvocation || header[1] != ColWorkload || header[2] != ColVariant {
		return nil, fmt.Errorf("unexpected results header %v", header)
	}
	metrics := header[3:]

	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		invocation, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid invocation %q", line, row[0])
		}
		rec := Record{
			Invocation: invocation,
			Workload:   row[1],
			Variant:    row[2],
			Metrics:    make([]Metric, len(metrics)),
		}
		for i, name := range metrics {
			v, err := strconv.ParseFloat(row[3+i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s value %q", line, name, row[3+i])
			}
			rec.Metrics[i] = Metric{Name: name, Value: v}
		}
		records = append(records, rec)
	}
	return records, nil
}
