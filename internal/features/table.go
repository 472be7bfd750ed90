// Package features converts per-night medication and sleep records into the
// numeric feature table consumed by the causal estimator. Missing values are
// represented as NaN throughout; nothing in this package silently zero-fills
// an unknown measurement.
package features

import (
	"math"
	"time"
)

// Table is a date-ordered numeric feature table. Columns lists the realized
// column names in a fixed order; downstream consumers must only access
// columns present in that list.
type Table struct {
	Dates   []time.Time
	Columns []string
	data    map[string][]float64
}

func newTable(n int) *Table {
	return &Table{
		Dates: make([]time.Time, 0, n),
		data:  make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Dates)
}

// HasColumn reports whether a column was realized for this dataset.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.data[name]
	return ok
}

// Column returns the values for a column, or nil if it was not realized.
// NaN marks missing values.
func (t *Table) Column(name string) []float64 {
	return t.data[name]
}

func (t *Table) addColumn(name string, values []float64) {
	if _, exists := t.data[name]; exists {
		return
	}
	t.data[name] = values
	t.Columns = append(t.Columns, name)
}

// ColumnsWithPrefix returns realized columns with the given prefix, in
// realized order.
func (t *Table) ColumnsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range t.Columns {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

// CompleteRows returns the indices of rows where every named column is
// present (non-NaN).
func (t *Table) CompleteRows(columns ...string) []int {
	var rows []int
	for i := 0; i < t.Len(); i++ {
		complete := true
		for _, c := range columns {
			vals, ok := t.data[c]
			if !ok || math.IsNaN(vals[i]) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, i)
		}
	}
	return rows
}
