package executor

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"alloc-bench/internal/results"
)

// perf stat -x , rows: value,unit,event,run-time,percent[,metric-value,metric-unit]
const (
	fieldValue = 0
	fieldEvent = 2
)

// parseReport strips the report preamble and turns each counter row into
// a metric. Raw data rows are returned for the audit log. Values are kept
// exactly as reported.
func parseReport(data string) ([]results.Metric, []string, error) {
	var metrics []results.Metric
	var raw []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)

		fields, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil {
			return nil, raw, fmt.Errorf("malformed row %q: %w", line, err)
		}
		if len(fields) <= fieldEvent {
			return nil, raw, fmt.Errorf("malformed row %q: expected at least %d fields", line, fieldEvent+1)
		}

		event := strings.TrimSpace(fields[fieldEvent])
		value := strings.TrimSpace(fields[fieldValue])
		if event == "" {
			return nil, raw, fmt.Errorf("row %q has no event name", line)
		}
		if strings.HasPrefix(value, "<") {
			return nil, raw, fmt.Errorf("event %s: %s", event, value)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, raw, fmt.Errorf("event %s: invalid value %q", event, value)
		}
		if seen[event] {
			return nil, raw, fmt.Errorf("event %s reported twice", event)
		}
		seen[event] = true

		metrics = append(metrics, results.Metric{Name: event, Value: v})
	}

	if len(metrics) == 0 {
		return nil, raw, fmt.Errorf("no counter rows")
	}
	return metrics, raw, nil
}
