package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Early-warning thresholds.
const (
	DefaultWindow        = 24
	VarianceTrendWarning = 0.2
	strongTrend          = 0.2
	weakTrend            = 0.1
	skewTrend            = 0.15
	defaultSignificance  = 0.05
	maxWarningLevel      = 3
	criticalLevel        = 2
	minWindow            = 3
	minRollingPoints     = 3
)

// Indicator labels reported in TippingResult.Indicators.
const (
	IndicatorVarianceIncrease        = "variance_increase"
	IndicatorVarianceTrend           = "variance_increase_trend"
	IndicatorAutocorrelationIncrease = "autocorrelation_increase"
	IndicatorAutocorrelationTrend    = "autocorrelation_trend"
	IndicatorSkewnessChange          = "skewness_change"
)

// TippingOption configures DetectTippingPoint.
type TippingOption func(*tippingSettings)

type tippingSettings struct {
	detrend      bool
	significance float64
}

// WithDetrend removes the least squares line before the rolling statistics are
// computed. Enabled by default.
func WithDetrend(enabled bool) TippingOption {
	return func(s *tippingSettings) { s.detrend = enabled }
}

// WithSignificance sets the p-value below which a trend counts as significant.
func WithSignificance(alpha float64) TippingOption {
	return func(s *tippingSettings) {
		if alpha > 0 && alpha < 1 {
			s.significance = alpha
		}
	}
}

// Trend is the Kendall τ of a rolling statistic against time.
type Trend struct {
	Tau     Number    `json:"tau" yaml:"tau"`
	PValue  Number    `json:"p_value" yaml:"p_value"`
	Initial float64   `json:"initial" yaml:"initial"`
	Current float64   `json:"current" yaml:"current"`
	Series  []float64 `json:"series" yaml:"series"`
}

// TippingResult reports early-warning signals of critical slowing down.
type TippingResult struct {
	Points              int      `json:"points" yaml:"points"`
	Window              int      `json:"window" yaml:"window"`
	Detrended           bool     `json:"detrended" yaml:"detrended"`
	Variance            Trend    `json:"variance" yaml:"variance"`
	Autocorrelation     Trend    `json:"autocorrelation" yaml:"autocorrelation"`
	Skewness            Trend    `json:"skewness" yaml:"skewness"`
	Warning             bool     `json:"warning" yaml:"warning"`
	WarningLevel        int      `json:"warning_level" yaml:"warning_level"`
	CriticalSlowingDown bool     `json:"critical_slowing_down" yaml:"critical_slowing_down"`
	Indicators          []string `json:"indicators" yaml:"indicators"`
}

// DetectTippingPoint slides a window over series and tracks the population
// variance, lag-1 autocorrelation and skewness of each full window. Each
// rolling statistic is tested for a monotone trend with Kendall's τ. Warning is
// raised when the variance trend exceeds VarianceTrendWarning. WarningLevel
// (0-3) also weighs autocorrelation and skewness trends, and a level of two or
// more signals critical slowing down. Missing values are dropped first.
func DetectTippingPoint(series []float64, window int, opts ...TippingOption) (TippingResult, error) {
	s := tippingSettings{detrend: true, significance: defaultSignificance}
	for _, opt := range opts {
		opt(&s)
	}
	if window < minWindow {
		return TippingResult{}, fmt.Errorf("%w: %d < %d", ErrInvalidWindow, window, minWindow)
	}

	x := finite(series)
	rolling := len(x) - window + 1
	if rolling < minRollingPoints {
		return TippingResult{}, fmt.Errorf("%w: %d points for window %d", ErrInsufficientData, len(x), window)
	}
	if s.detrend {
		x = detrend(x)
	}

	variances := make([]float64, rolling)
	autocorr := make([]float64, rolling)
	skews := make([]float64, rolling)
	for i := 0; i < rolling; i++ {
		seg := x[i : i+window]
		_, v := stat.PopMeanVariance(seg, nil)
		variances[i] = v
		autocorr[i] = zeroNaN(stat.Correlation(seg[:len(seg)-1], seg[1:], nil))
		skews[i] = zeroNaN(stat.Skew(seg, nil))
	}

	steps := floats.Span(make([]float64, rolling), 0, float64(rolling-1))
	res := TippingResult{
		Points:          len(x),
		Window:          window,
		Detrended:       s.detrend,
		Variance:        trendOf(steps, variances),
		Autocorrelation: trendOf(steps, autocorr),
		Skewness:        trendOf(steps, skews),
		Indicators:      []string{},
	}
	res.Warning = float64(res.Variance.Tau) > VarianceTrendWarning

	level := 0.0
	sig := func(p Number) bool { return p.Valid() && float64(p) < s.significance }
	switch tau := float64(res.Variance.Tau); {
	case tau > strongTrend && sig(res.Variance.PValue):
		level++
		res.Indicators = append(res.Indicators, IndicatorVarianceIncrease)
	case tau > weakTrend:
		level += 0.5
		res.Indicators = append(res.Indicators, IndicatorVarianceTrend)
	}
	switch tau := float64(res.Autocorrelation.Tau); {
	case tau > strongTrend && sig(res.Autocorrelation.PValue):
		level++
		res.Indicators = append(res.Indicators, IndicatorAutocorrelationIncrease)
	case tau > weakTrend:
		level += 0.5
		res.Indicators = append(res.Indicators, IndicatorAutocorrelationTrend)
	}
	if math.Abs(float64(res.Skewness.Tau)) > skewTrend && sig(res.Skewness.PValue) {
		level += 0.5
		res.Indicators = append(res.Indicators, IndicatorSkewnessChange)
	}

	res.WarningLevel = min(int(math.Floor(level)), maxWarningLevel)
	res.CriticalSlowingDown = res.WarningLevel >= criticalLevel
	return res, nil
}

func trendOf(steps, values []float64) Trend {
	tau, p := KendallTau(steps, values)
	return Trend{
		Tau:     Number(tau),
		PValue:  Number(p),
		Initial: values[0],
		Current: values[len(values)-1],
		Series:  values,
	}
}

// detrend subtracts the least squares line fitted against the sample index.
func detrend(y []float64) []float64 {
	idx := floats.Span(make([]float64, len(y)), 0, float64(len(y)-1))
	alpha, beta := stat.LinearRegression(idx, y, nil, false)
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = v - (alpha + beta*idx[i])
	}
	return out
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
