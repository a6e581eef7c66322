package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics of one column.
type Summary struct {
	Column  string `json:"column" yaml:"column"`
	Count   int    `json:"count" yaml:"count"`
	Missing int    `json:"missing" yaml:"missing"`
	Mean    Number `json:"mean" yaml:"mean"`
	Std     Number `json:"std" yaml:"std"`
	Min     Number `json:"min" yaml:"min"`
	P25     Number `json:"p25" yaml:"p25"`
	P50     Number `json:"p50" yaml:"p50"`
	P75     Number `json:"p75" yaml:"p75"`
	Max     Number `json:"max" yaml:"max"`
}

// Describe summarises every column of t. Std is the sample standard deviation
// and is NaN below two observations. Percentiles interpolate linearly between
// order statistics, so P50 is the median.
// Columns without observations report NaN for every statistic.
func Describe(t *Table) []Summary {
	out := make([]Summary, 0, len(t.names))
	for i, name := range t.names {
		out = append(out, describeColumn(name, t.columns[i]))
	}
	return out
}

func describeColumn(name string, col []float64) Summary {
	x := finite(col)
	s := Summary{Column: name, Count: len(x), Missing: len(col) - len(x)}
	nan := Number(math.NaN())
	if len(x) == 0 {
		s.Mean, s.Std, s.Min, s.P25, s.P50, s.P75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}

	sort.Float64s(x)
	s.Mean = Number(stat.Mean(x, nil))
	s.Std = nan
	if len(x) > 1 {
		s.Std = Number(stat.StdDev(x, nil))
	}
	s.Min = Number(floats.Min(x))
	s.Max = Number(floats.Max(x))
	s.P25 = Number(quantile(0.25, x))
	s.P50 = Number(quantile(0.50, x))
	s.P75 = Number(quantile(0.75, x))
	return s
}

// quantile is the p-quantile of sorted x at position (n-1)p, interpolated
// between its neighbours.
func quantile(p float64, x []float64) float64 {
	h := float64(len(x)-1) * p
	lo := int(math.Floor(h))
	if lo+1 >= len(x) {
		return x[len(x)-1]
	}
	return x[lo] + (h-float64(lo))*(x[lo+1]-x[lo])
}
