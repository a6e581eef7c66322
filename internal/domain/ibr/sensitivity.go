package ibr

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Default sensitivity sweep.
const (
	SweepLow          = 0.3
	SweepHigh         = 1.0
	DefaultSweepSteps = 8
	HighSensitivity   = 0.25
)

// SensitivityResult describes how the score responds to one parameter.
type SensitivityResult struct {
	Code        Code      `json:"code" yaml:"code"`
	Grid        []float64 `json:"grid" yaml:"grid"`
	Scores      []float64 `json:"scores" yaml:"scores"`
	Bands       []Band    `json:"bands" yaml:"bands"`
	MinScore    float64   `json:"min_score" yaml:"min_score"`
	MaxScore    float64   `json:"max_score" yaml:"max_score"`
	Sensitivity float64   `json:"sensitivity" yaml:"sensitivity"`
	High        bool      `json:"high" yaml:"high"`
}

// Sensitivity sweeps code across [SweepLow, SweepHigh] in steps evenly spaced
// points, holding the other parameters of base fixed. Sensitivity is the score
// range divided by the sweep span. Steps below 2 fall back to DefaultSweepSteps.
func Sensitivity(base Parameters, code Code, steps int) (SensitivityResult, error) {
	if !IsCanonical(code) {
		return SensitivityResult{}, fmt.Errorf("%w: %s", ErrUnknownCode, code)
	}
	if steps < 2 {
		steps = DefaultSweepSteps
	}

	grid := floats.Span(make([]float64, steps), SweepLow, SweepHigh)
	scores := make([]float64, steps)
	bands := make([]Band, steps)

	params := make(Parameters, len(base)+1)
	for c, v := range base {
		params[c] = v
	}
	for i, v := range grid {
		params[code] = v
		r := Compute(params)
		scores[i] = r.Score
		bands[i] = r.Classification
	}

	lo, hi := floats.Min(scores), floats.Max(scores)
	s := (hi - lo) / (SweepHigh - SweepLow)
	return SensitivityResult{
		Code:        code,
		Grid:        grid,
		Scores:      scores,
		Bands:       bands,
		MinScore:    lo,
		MaxScore:    hi,
		Sensitivity: s,
		High:        s > HighSensitivity,
	}, nil
}

// SensitivityAll runs Sensitivity for every canonical code.
func SensitivityAll(base Parameters, steps int) []SensitivityResult {
	out := make([]SensitivityResult, 0, len(canonical))
	for _, code := range canonical {
		r, _ := Sensitivity(base, code, steps)
		out = append(out, r)
	}
	return out
}
