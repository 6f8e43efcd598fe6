package aggregate

import (
	"fmt"
	"math"

	"alloc-bench/internal/results"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Keys a matrix can be indexed or split by.
const (
	KeyWorkload = results.ColWorkload
	KeyVariant  = results.ColVariant
)

// Summary rows appended by Pivot, in order.
var SummaryRows = []string{"min", "max", "mean", "geomean"}

// AggregationError reports an invariant violation in the offline
// pipeline. No partial output accompanies it.
type AggregationError struct {
	Op     string
	Reason string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func errorf(op, format string, args ...interface{}) error {
	return &AggregationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Row is one (workload, variant) line of a Table. Values follow Table.Metrics.
type Row struct {
	Workload string
	Variant  string
	Values   []float64
}

func (r Row) key(name string) string {
	if name == KeyVariant {
		return r.Variant
	}
	return r.Workload
}

// Table is the invocation-free form of a results file.
type Table struct {
	Metrics []string
	Rows    []Row
}

func (t *Table) metricIndex(name string) int {
	for i, m := range t.Metrics {
		if m == name {
			return i
		}
	}
	return -1
}

// Value returns the metric of one (workload, variant) pair.
func (t *Table) Value(workload, variant, metric string) (float64, bool) {
	idx := t.metricIndex(metric)
	if idx < 0 {
		return 0, false
	}
	for _, r := range t.Rows {
		if r.Workload == workload && r.Variant == variant {
			return r.Values[idx], true
		}
	}
	return 0, false
}

type groupKey struct {
	workload string
	variant  string
}

// MeanOverInvocations collapses every (variant, workload) group to one row
// holding the arithmetic mean of each metric. Groups keep the order of
// their first record.
func MeanOverInvocations(records []results.Record) (*Table, error) {
	const op = "mean over invocations"
	if len(records) == 0 {
		return nil, errorf(op, "no records")
	}

	metrics := records[0].MetricNames()
	if len(metrics) == 0 {
		return nil, errorf(op, "records carry no metrics")
	}

	var order []groupKey
	samples := make(map[groupKey][][]float64)
	for _, rec := range records {
		key := groupKey{workload: rec.Workload, variant: rec.Variant}
		if _, seen := samples[key]; !seen {
			order = append(order, key)
			samples[key] = make([][]float64, len(metrics))
		}
		if len(rec.Metrics) != len(metrics) {
			return nil, errorf(op, "%s/%s invocation %d: expected %d metrics, got %d",
				rec.Workload, rec.Variant, rec.Invocation, len(metrics), len(rec.Metrics))
		}
		for i, name := range metrics {
			v, ok := rec.Value(name)
			if !ok {
				return nil, errorf(op, "%s/%s invocation %d: metric %s missing",
					rec.Workload, rec.Variant, rec.Invocation, name)
			}
			samples[key][i] = append(samples[key][i], v)
		}
	}

	table := &Table{Metrics: metrics}
	for _, key := range order {
		row := Row{Workload: key.workload, Variant: key.variant, Values: make([]float64, len(metrics))}
		for i, values := range samples[key] {
			if len(values) == 0 {
				return nil, errorf(op, "%s/%s: empty group", key.workload, key.variant)
			}
			row.Values[i] = stat.Mean(values, nil)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// Normalize divides each workload's metrics by the baseline variant's
// values for that workload. The baseline rows become exactly 1.0.
func Normalize(t *Table, baseline string) (*Table, error) {
	const op = "normalize"
	if t == nil || len(t.Rows) == 0 {
		return nil, errorf(op, "empty table")
	}

	base := make(map[string][]float64)
	for _, r := range t.Rows {
		if r.Variant == baseline {
			base[r.Workload] = r.Values
		}
	}

	out := &Table{Metrics: append([]string(nil), t.Metrics...)}
	for _, r := range t.Rows {
		denom, ok := base[r.Workload]
		if !ok {
			return nil, errorf(op, "baseline variant %q missing for workload %s", baseline, r.Workload)
		}
		row := Row{Workload: r.Workload, Variant: r.Variant, Values: make([]float64, len(r.Values))}
		for i, v := range r.Values {
			if r.Variant == baseline {
				row.Values[i] = 1
				continue
			}
			row.Values[i] = v / denom[i]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// MatrixRow is one labelled line of a Matrix. Missing cells are NaN.
type MatrixRow struct {
	Label  string
	Values []float64
}

// Matrix is a Table reshaped to index × series for a single metric, with
// per-column summary rows.
type Matrix struct {
	Index   string
	Series  string
	Metric  string
	Columns []string
	Rows    []MatrixRow
	Summary []MatrixRow
}

// Value returns the cell at (row label, column), false when absent.
func (m *Matrix) Value(label, column string) (float64, bool) {
	return lookup(m.Rows, m.Columns, label, column)
}

// SummaryValue returns a derived row's value, e.g. ("geomean", "mi").
func (m *Matrix) SummaryValue(name, column string) (float64, bool) {
	return lookup(m.Summary, m.Columns, name, column)
}

func lookup(rows []MatrixRow, columns []string, label, column string) (float64, bool) {
	col := -1
	for i, c := range columns {
		if c == column {
			col = i
		}
	}
	if col < 0 {
		return 0, false
	}
	for _, r := range rows {
		if r.Label == label {
			v := r.Values[col]
			return v, !math.IsNaN(v)
		}
	}
	return 0, false
}

// Pivot reshapes t into rows keyed by index and one column per distinct
// series value, holding metric. Duplicate cells are averaged. Summary rows
// are computed over each column's present values.
func Pivot(t *Table, series, index, metric string) (*Matrix, error) {
	const op = "pivot"
	if t == nil || len(t.Rows) == 0 {
		return nil, errorf(op, "empty table")
	}
	if !validKey(series) || !validKey(index) || series == index {
		return nil, errorf(op, "series and index must be distinct keys out of %q and %q", KeyVariant, KeyWorkload)
	}
	idx := t.metricIndex(metric)
	if idx < 0 {
		return nil, errorf(op, "unknown metric %q", metric)
	}

	m := &Matrix{Index: index, Series: series, Metric: metric}
	colPos := make(map[string]int)
	rowPos := make(map[string]int)
	for _, r := range t.Rows {
		if _, ok := colPos[r.key(series)]; !ok {
			colPos[r.key(series)] = len(m.Columns)
			m.Columns = append(m.Columns, r.key(series))
		}
		if _, ok := rowPos[r.key(index)]; !ok {
			rowPos[r.key(index)] = len(rowPos)
		}
	}

	sums := make([][]float64, len(rowPos))
	counts := make([][]int, len(rowPos))
	for i := range sums {
		sums[i] = make([]float64, len(m.Columns))
		counts[i] = make([]int, len(m.Columns))
	}
	labels := make([]string, len(rowPos))
	for label, pos := range rowPos {
		labels[pos] = label
	}
	for _, r := range t.Rows {
		i, j := rowPos[r.key(index)], colPos[r.key(series)]
		sums[i][j] += r.Values[idx]
		counts[i][j]++
	}

	for i, label := range labels {
		row := MatrixRow{Label: label, Values: make([]float64, len(m.Columns))}
		for j := range m.Columns {
			if counts[i][j] == 0 {
				row.Values[j] = math.NaN()
				continue
			}
			row.Values[j] = sums[i][j] / float64(counts[i][j])
		}
		m.Rows = append(m.Rows, row)
	}

	m.Summary = summarize(m.Rows, len(m.Columns))
	return m, nil
}

func validKey(k string) bool {
	return k == KeyVariant || k == KeyWorkload
}

func summarize(rows []MatrixRow, columns int) []MatrixRow {
	out := make([]MatrixRow, len(SummaryRows))
	for i, name := range SummaryRows {
		out[i] = MatrixRow{Label: name, Values: make([]float64, columns)}
	}

	for j := 0; j < columns; j++ {
		var present []float64
		for _, r := range rows {
			if !math.IsNaN(r.Values[j]) {
				present = append(present, r.Values[j])
			}
		}
		if len(present) == 0 {
			for i := range out {
				out[i].Values[j] = math.NaN()
			}
			continue
		}
		out[0].Values[j] = floats.Min(present)
		out[1].Values[j] = floats.Max(present)
		out[2].Values[j] = stat.Mean(present, nil)
		out[3].Values[j] = stat.GeometricMean(present, nil)
	}
	return out
}
