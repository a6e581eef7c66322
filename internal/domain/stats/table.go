// Package stats provides the statistical diagnostics that accompany IBR
// scoring: descriptive summaries, pairwise correlation with significance,
// regression based weight re-estimation and early-warning tipping point
// detection. All functions are pure and safe for concurrent use.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Number is a float64 that encodes NaN and ±Inf as JSON null.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// MarshalYAML implements yaml.Marshaler with the same null encoding.
func (n Number) MarshalYAML() (any, error) {
	if !n.Valid() {
		return nil, nil
	}
	return float64(n), nil
}

// Valid reports whether n is finite.
func (n Number) Valid() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Table is a set of equally long numeric columns. NaN cells are missing.
type Table struct {
	names   []string
	columns [][]float64
	index   map[string]int
}

// NewTable builds a table from parallel name and column slices. Columns are
// copied.
func NewTable(names []string, columns [][]float64) (*Table, error) {
	if len(names) != len(columns) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrShape, len(names), len(columns))
	}
	t := &Table{index: make(map[string]int, len(names))}
	rows := -1
	for i, name := range names {
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrShape, name)
		}
		if rows >= 0 && len(columns[i]) != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrShape, name, len(columns[i]), rows)
		}
		rows = len(columns[i])
		col := make([]float64, rows)
		copy(col, columns[i])
		t.index[name] = i
		t.names = append(t.names, name)
		t.columns = append(t.columns, col)
	}
	return t, nil
}

// TableFromMap builds a table from named columns. Nil cells become NaN and
// columns are ordered by name.
func TableFromMap(cols map[string][]*float64) (*Table, error) {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([][]float64, len(names))
	for i, name := range names {
		columns[i] = Float64s(cols[name])
	}
	return NewTable(names, columns)
}

// Float64s dereferences src, mapping nil to NaN.
func Float64s(src []*float64) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Column returns the named column. The slice must not be modified.
func (t *Table) Column(name string) ([]float64, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Rows returns the number of rows.
func (t *Table) Rows() int {
	if len(t.columns) == 0 {
		return 0
	}
	return len(t.columns[0])
}

// finite returns the finite values of x in a new slice.
func finite(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// pairwise returns the rows where both x and y are finite.
func pairwise(x, y []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) || math.IsInf(x[i], 0) || math.IsInf(y[i], 0) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}
