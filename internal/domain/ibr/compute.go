package ibr

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Warning thresholds on individual parameter values.
const (
	criticalLow   = 0.2
	unusuallyHigh = 0.95
)

// Result is the outcome of one computation. It is built fresh by Compute and
// never modified afterwards; callers must treat its maps as read-only.
type Result struct {
	Score          float64          `json:"ibr" yaml:"ibr"`
	Classification Band             `json:"classification" yaml:"classification"`
	Contributions  map[Code]float64 `json:"contributions" yaml:"contributions"`
	WeightUsed     float64          `json:"weights_used" yaml:"weights_used"`
	Uncertainty    float64          `json:"uncertainty" yaml:"uncertainty"`
	Confidence     float64          `json:"confidence" yaml:"confidence"`
	Warnings       []string         `json:"warnings" yaml:"warnings"`
}

// Empty reports whether no canonical parameter contributed to the result.
func (r Result) Empty() bool { return r.WeightUsed == 0 }

// ComputeOption tunes a single computation.
type ComputeOption func(*computeSettings)

type computeSettings struct {
	uncertainty map[Code]float64
}

// WithUncertainties overrides the per-parameter standard deviation used for the
// propagated uncertainty. Codes that are absent keep DefaultUncertainty.
func WithUncertainties(sd map[Code]float64) ComputeOption {
	return func(s *computeSettings) {
		s.uncertainty = sd
	}
}

// Compute combines the canonical parameters present in params into a normalized
// score: the weighted sum divided by the sum of weights actually used. Values are
// not range-checked here; see Validate. Unknown codes are ignored and reported as
// warnings. With no canonical parameter present the score is 0 and the band is
// Collapsed.
func Compute(params Parameters, opts ...ComputeOption) Result {
	var s computeSettings
	for _, opt := range opts {
		opt(&s)
	}

	var (
		total, used, varSum float64
		contributions       = make(map[Code]float64, len(params))
		missing             []string
	)
	for _, code := range canonical {
		v, ok := params[code]
		if !ok {
			missing = append(missing, string(code))
			continue
		}
		w := weights[code]
		c := v * w
		contributions[code] = c
		total += c
		used += w

		sd := DefaultUncertainty
		if u, ok := s.uncertainty[code]; ok {
			sd = u
		}
		varSum += w * w * sd * sd
	}

	res := Result{
		Contributions: contributions,
		WeightUsed:    used,
	}
	if used > 0 {
		res.Score = total / used
		res.Uncertainty = math.Sqrt(varSum)
		res.Confidence = 1 - res.Uncertainty
	}
	res.Classification = Classify(res.Score)
	res.Warnings = warnings(params, res.Classification, missing)
	return res
}

func warnings(params Parameters, band Band, missing []string) []string {
	out := []string{}
	if len(missing) > 0 {
		out = append(out, fmt.Sprintf("missing parameters: %s", strings.Join(missing, ", ")))
	}

	var extra []string
	for code := range params {
		if !IsCanonical(code) {
			extra = append(extra, string(code))
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		out = append(out, fmt.Sprintf("unknown parameters ignored: %s", strings.Join(extra, ", ")))
	}

	for _, code := range canonical {
		v, ok := params[code]
		if !ok {
			continue
		}
		switch {
		case v < criticalLow:
			out = append(out, fmt.Sprintf("critically low value for %s: %.3f", code, v))
		case v > unusuallyHigh:
			out = append(out, fmt.Sprintf("unusually high value for %s: %.3f", code, v))
		}
	}

	switch band {
	case Collapsed:
		out = append(out, "CRITICAL: ecosystem in COLLAPSED state")
	case Degraded:
		out = append(out, "WARNING: ecosystem DEGRADED, intervention recommended")
	}
	return out
}
