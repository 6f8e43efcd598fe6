package results

// Fixed leading columns of every results file.
const (
	ColInvocation = "invocation"
	ColWorkload   = "bench"
	ColVariant    = "variant"
)

type Metric struct {
	Name  string
	Value float64
}

// Record is one measured cell. Metrics keep the order the sampling tool
// reported them in, which is the column order of the results file.
type Record struct {
	Invocation int
	Workload   string
	Variant    string
	Metrics    []Metric
}

// Header returns the CSV header this record serializes under.
func (r *Record) Header() []string {
	header := []string{ColInvocation, ColWorkload, ColVariant}
	for _, m := range r.Metrics {
		header = append(header, m.Name)
	}
	return header
}

// Value looks up a metric by name.
func (r *Record) Value(name string) (float64, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

func (r *Record) MetricNames() []string {
	names := make([]string, len(r.Metrics))
	for i, m := range r.Metrics {
		names[i] = m.Name
	}
	return names
}
