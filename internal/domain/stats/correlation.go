package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Method selects a correlation coefficient.
type Method string

// Supported correlation methods.
const (
	Pearson  Method = "pearson"
	Spearman Method = "spearman"
	Kendall  Method = "kendall"
)

// ParseMethod resolves a method name, defaulting to Pearson when empty.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Pearson, nil
	case Pearson, Spearman, Kendall:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// minPairs is the smallest sample a coefficient is reported for.
const minPairs = 3

// CorrelationMatrix is a symmetric matrix of coefficients with matching
// two-sided p-values. The diagonal is NaN.
type CorrelationMatrix struct {
	Method       Method     `json:"method" yaml:"method"`
	Columns      []string   `json:"columns" yaml:"columns"`
	Coefficients [][]Number `json:"coefficients" yaml:"coefficients"`
	PValues      [][]Number `json:"p_values" yaml:"p_values"`
	N            [][]int    `json:"n" yaml:"n"`
}

// Coefficient looks up the coefficient for a pair of columns.
func (m CorrelationMatrix) Coefficient(a, b string) (float64, bool) {
	i, j := indexOf(m.Columns, a), indexOf(m.Columns, b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return float64(m.Coefficients[i][j]), true
}

// PValue looks up the p-value for a pair of columns.
func (m CorrelationMatrix) PValue(a, b string) (float64, bool) {
	i, j := indexOf(m.Columns, a), indexOf(m.Columns, b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return float64(m.PValues[i][j]), true
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// Correlate computes pairwise correlations between every column of t using
// rows where both columns are observed. Pairs with fewer than three complete
// rows report NaN.
func Correlate(t *Table, method Method) (CorrelationMatrix, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return CorrelationMatrix{}, err
	}
	if method == "" {
		method = Pearson
	}

	k := len(t.names)
	m := CorrelationMatrix{
		Method:       method,
		Columns:      t.Names(),
		Coefficients: square[Number](k),
		PValues:      square[Number](k),
		N:            square[int](k),
	}
	nan := Number(math.NaN())
	for i := 0; i < k; i++ {
		m.Coefficients[i][i] = nan
		m.PValues[i][i] = nan
		m.N[i][i] = len(finite(t.columns[i]))
		for j := i + 1; j < k; j++ {
			x, y := pairwise(t.columns[i], t.columns[j])
			r, p := correlatePair(x, y, method)
			m.Coefficients[i][j], m.Coefficients[j][i] = Number(r), Number(r)
			m.PValues[i][j], m.PValues[j][i] = Number(p), Number(p)
			m.N[i][j], m.N[j][i] = len(x), len(x)
		}
	}
	return m, nil
}

func square[T any](k int) [][]T {
	out := make([][]T, k)
	for i := range out {
		out[i] = make([]T, k)
	}
	return out
}

func correlatePair(x, y []float64, method Method) (float64, float64) {
	if len(x) < minPairs {
		return math.NaN(), math.NaN()
	}
	switch method {
	case Spearman:
		r := stat.Correlation(Ranks(x), Ranks(y), nil)
		return r, tTestP(r, len(x))
	case Kendall:
		return KendallTau(x, y)
	default:
		r := stat.Correlation(x, y, nil)
		return r, tTestP(r, len(x))
	}
}

// tTestP is the two-sided p-value of a correlation r over n pairs under the
// null of no association, using Student's t with n-2 degrees of freedom.
func tTestP(r float64, n int) float64 {
	if math.IsNaN(r) {
		return math.NaN()
	}
	df := float64(n - 2)
	den := 1 - r*r
	if den <= 0 {
		return 0
	}
	t := r * math.Sqrt(df/den)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.CDF(-math.Abs(t))
}

// Ranks assigns 1-based ranks to x, averaging ties.
func Ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	ranks := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// KendallTau returns Kendall's tau-b between x and y and its two-sided
// p-value from the tie-corrected normal approximation. The coefficient is NaN
// when either input is constant.
func KendallTau(x, y []float64) (float64, float64) {
	n := len(x)
	if n < 2 || len(y) != n {
		return math.NaN(), math.NaN()
	}

	var concordant, discordant, tiesX, tiesY float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := x[i] - x[j]
			dy := y[i] - y[j]
			switch {
			case dx == 0 && dy == 0:
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case (dx > 0) == (dy > 0):
				concordant++
			default:
				discordant++
			}
		}
	}

	pairs := float64(n*(n-1)) / 2
	tx := tieSums(x)
	ty := tieSums(y)
	n1 := pairs - tx.pairs
	n2 := pairs - ty.pairs
	if n1 == 0 || n2 == 0 {
		return math.NaN(), math.NaN()
	}
	tau := (concordant - discordant) / math.Sqrt(n1*n2)

	fn := float64(n)
	v0 := fn * (fn - 1) * (2*fn + 5)
	variance := (v0-tx.v2-ty.v2)/18 +
		(tx.v1*ty.v1)/(2*fn*(fn-1))
	if n > 2 {
		variance += (tx.v3 * ty.v3) / (9 * fn * (fn - 1) * (fn - 2))
	}
	if variance <= 0 {
		return tau, math.NaN()
	}
	z := (concordant - discordant) / math.Sqrt(variance)
	return tau, 2 * distuv.UnitNormal.CDF(-math.Abs(z))
}

type ties struct {
	pairs float64 // Σ t(t-1)/2
	v1    float64 // Σ t(t-1)
	v2    float64 // Σ t(t-1)(2t+5)
	v3    float64 // Σ t(t-1)(t-2)
}

func tieSums(x []float64) ties {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	var out ties
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[i] {
			j++
		}
		if t := float64(j - i + 1); t > 1 {
			out.pairs += t * (t - 1) / 2
			out.v1 += t * (t - 1)
			out.v2 += t * (t - 1) * (2*t + 5)
			out.v3 += t * (t - 1) * (t - 2)
		}
		i = j + 1
	}
	return out
}
