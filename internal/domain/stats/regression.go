package stats

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Estimator selects how weights are re-estimated.
type Estimator string

// Supported estimators.
const (
	OLS   Estimator = "ols"
	Bayes Estimator = "bayes"
)

// ParseEstimator resolves an estimator name, defaulting to OLS when empty.
func ParseEstimator(s string) (Estimator, error) {
	switch e := Estimator(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return OLS, nil
	case OLS, Bayes:
		return e, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Default prior used for predictors without an explicit prior.
const (
	DefaultPriorMean = 0.1
	DefaultPriorSD   = 0.05
	DefaultNoiseSD   = 0.05
)

// Prior is a Normal prior on a single weight.
type Prior struct {
	Mean float64
	SD   float64
}

// RegressionOption configures EstimateWeights.
type RegressionOption func(*regressionSettings)

type regressionSettings struct {
	priors  map[string]Prior
	noiseSD float64
}

// WithPriors sets the Normal prior of each named predictor for Bayes.
func WithPriors(priors map[string]Prior) RegressionOption {
	return func(s *regressionSettings) { s.priors = priors }
}

// WithNoiseSD sets the observation noise standard deviation for Bayes.
func WithNoiseSD(sd float64) RegressionOption {
	return func(s *regressionSettings) {
		if sd > 0 {
			s.noiseSD = sd
		}
	}
}

// WeightEstimate is a fitted linear model outcome ~ intercept + Σ w·predictor.
type WeightEstimate struct {
	Method      Estimator          `json:"method" yaml:"method"`
	Outcome     string             `json:"outcome" yaml:"outcome"`
	Predictors  []string           `json:"predictors" yaml:"predictors"`
	Weights     map[string]float64 `json:"weights" yaml:"weights"`
	Normalized  map[string]Number  `json:"normalized_weights" yaml:"normalized_weights"`
	PosteriorSD map[string]float64 `json:"posterior_sd,omitempty" yaml:"posterior_sd,omitempty"`
	Intercept   float64            `json:"intercept" yaml:"intercept"`
	RSquared    Number             `json:"r_squared" yaml:"r_squared"`
	N           int                `json:"n" yaml:"n"`
}

// EstimateWeights regresses the outcome column on every other column of t,
// dropping rows with a missing cell. OLS solves the least squares problem with
// an intercept. Bayes treats the intercept as flat and the weights as
// independent Normal priors, returning the closed-form posterior mean and
// standard deviation; this is ridge regression shrunk toward the prior means.
// Normalized weights are the weights divided by their sum.
func EstimateWeights(t *Table, outcome string, method Estimator, opts ...RegressionOption) (WeightEstimate, error) {
	s := regressionSettings{noiseSD: DefaultNoiseSD}
	for _, opt := range opts {
		opt(&s)
	}
	if _, err := ParseEstimator(string(method)); err != nil {
		return WeightEstimate{}, err
	}
	if method == "" {
		method = OLS
	}

	yCol, ok := t.Column(outcome)
	if !ok {
		return WeightEstimate{}, fmt.Errorf("%w: %q", ErrUnknownColumn, outcome)
	}
	var predictors []string
	var xCols [][]float64
	for i, name := range t.names {
		if name == outcome {
			continue
		}
		predictors = append(predictors, name)
		xCols = append(xCols, t.columns[i])
	}
	k := len(predictors)
	if k == 0 {
		return WeightEstimate{}, fmt.Errorf("%w: no predictor columns", ErrInsufficientData)
	}

	rows := completeRows(yCol, xCols)
	n := len(rows)
	minRows := k + 1
	if method == OLS {
		minRows = k + 2
	}
	if n < minRows {
		return WeightEstimate{}, fmt.Errorf("%w: %d complete rows for %d predictors", ErrInsufficientData, n, k)
	}

	y := make([]float64, n)
	x := mat.NewDense(n, k, nil)
	for r, row := range rows {
		y[r] = yCol[row]
		for c := range xCols {
			x.Set(r, c, xCols[c][row])
		}
	}

	est := WeightEstimate{
		Method:     method,
		Outcome:    outcome,
		Predictors: predictors,
		Weights:    make(map[string]float64, k),
		Normalized: make(map[string]Number, k),
		N:          n,
	}

	var (
		w         []float64
		intercept float64
		err       error
	)
	switch method {
	case Bayes:
		var sd []float64
		w, sd, intercept, err = fitBayes(x, y, priorsFor(predictors, s.priors), s.noiseSD)
		if err == nil {
			est.PosteriorSD = make(map[string]float64, k)
			for i, name := range predictors {
				est.PosteriorSD[name] = sd[i]
			}
		}
	default:
		w, intercept, err = fitOLS(x, y)
	}
	if err != nil {
		return WeightEstimate{}, err
	}

	sum := 0.0
	for _, v := range w {
		sum += v
	}
	for i, name := range predictors {
		est.Weights[name] = w[i]
		if sum != 0 {
			est.Normalized[name] = Number(w[i] / sum)
		} else {
			est.Normalized[name] = Number(math.NaN())
		}
	}
	est.Intercept = intercept
	est.RSquared = Number(rSquared(x, y, w, intercept))
	return est, nil
}

func completeRows(y []float64, xs [][]float64) []int {
	var rows []int
	for r := range y {
		if math.IsNaN(y[r]) || math.IsInf(y[r], 0) {
			continue
		}
		ok := true
		for _, col := range xs {
			if math.IsNaN(col[r]) || math.IsInf(col[r], 0) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, r)
		}
	}
	return rows
}

func priorsFor(predictors []string, priors map[string]Prior) []Prior {
	out := make([]Prior, len(predictors))
	for i, name := range predictors {
		p, ok := priors[name]
		if !ok {
			p = Prior{Mean: DefaultPriorMean, SD: DefaultPriorSD}
		}
		if p.SD <= 0 {
			p.SD = DefaultPriorSD
		}
		out[i] = p
	}
	return out
}

func fitOLS(x *mat.Dense, y []float64) ([]float64, float64, error) {
	n, k := x.Dims()
	design := mat.NewDense(n, k+1, nil)
	for r := 0; r < n; r++ {
		design.Set(r, 0, 1)
		for c := 0; c < k; c++ {
			design.Set(r, c+1, x.At(r, c))
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(design, mat.NewVecDense(n, y)); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	w := make([]float64, k)
	for i := range w {
		w[i] = beta.AtVec(i + 1)
	}
	return w, beta.AtVec(0), nil
}

func fitBayes(x *mat.Dense, y []float64, priors []Prior, noiseSD float64) ([]float64, []float64, float64, error) {
	n, k := x.Dims()

	// Centre predictors and outcome so the flat intercept drops out.
	means := make([]float64, k)
	xc := mat.NewDense(n, k, nil)
	for c := 0; c < k; c++ {
		col := mat.Col(nil, c, x)
		means[c] = stat.Mean(col, nil)
		for r := 0; r < n; r++ {
			xc.Set(r, c, col[r]-means[c])
		}
	}
	yMean := stat.Mean(y, nil)
	yc := make([]float64, n)
	for r := range y {
		yc[r] = y[r] - yMean
	}

	noiseVar := noiseSD * noiseSD
	var precision mat.SymDense
	precision.SymOuterK(1/noiseVar, xc.T())
	rhs := mat.NewVecDense(k, nil)
	rhs.MulVec(xc.T(), mat.NewVecDense(n, yc))
	rhs.ScaleVec(1/noiseVar, rhs)
	for i, p := range priors {
		pv := 1 / (p.SD * p.SD)
		precision.SetSym(i, i, precision.At(i, i)+pv)
		rhs.SetVec(i, rhs.AtVec(i)+pv*p.Mean)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&precision); !ok {
		return nil, nil, 0, ErrSingular
	}
	var mean mat.VecDense
	if err := chol.SolveVecTo(&mean, rhs); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	w := make([]float64, k)
	sd := make([]float64, k)
	intercept := yMean
	for i := range w {
		w[i] = mean.AtVec(i)
		sd[i] = math.Sqrt(cov.At(i, i))
		intercept -= w[i] * means[i]
	}
	return w, sd, intercept, nil
}

// rSquared is 1 - SSE/SST of the fitted values; NaN when y is constant.
func rSquared(x *mat.Dense, y, w []float64, intercept float64) float64 {
	n, k := x.Dims()
	yMean := stat.Mean(y, nil)
	var sse, sst float64
	for r := 0; r < n; r++ {
		fit := intercept
		for c := 0; c < k; c++ {
			fit += w[c] * x.At(r, c)
		}
		d := y[r] - fit
		sse += d * d
		m := y[r] - yMean
		sst += m * m
	}
	if sst == 0 {
		return math.NaN()
	}
	return 1 - sse/sst
}
