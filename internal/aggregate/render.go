package aggregate

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
)

// Print writes the matrix as an aligned table, summary rows last.
func (m *Matrix) Print(w io.Writer) {
	t := tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))

	header := []interface{}{m.Index}
	for _, c := range m.Columns {
		header = append(header, c)
	}
	t.AddHeader(header...)

	for _, r := range m.Rows {
		t.AddLine(displayRow(r)...)
	}
	for _, r := range m.Summary {
		t.AddLine(displayRow(r)...)
	}
	t.Print()
}

func displayRow(r MatrixRow) []interface{} {
	line := []interface{}{r.Label}
	for _, v := range r.Values {
		if math.IsNaN(v) {
			line = append(line, "-")
			continue
		}
		line = append(line, humanize.CommafWithDigits(v, 3))
	}
	return line
}

// WriteCSV writes the matrix with full precision. Missing cells are empty.
func (m *Matrix) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(append([]string{m.Index}, m.Columns...)); err != nil {
		return err
	}
	rows := append(append([]MatrixRow(nil), m.Rows...), m.Summary...)
	for _, r := range rows {
		record := []string{r.Label}
		for _, v := range r.Values {
			if math.IsNaN(v) {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
