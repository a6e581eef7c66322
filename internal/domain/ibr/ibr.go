// Package ibr implements the Index of Biotic Resilience: a weighted combination of
// nine normalized ecosystem sub-indicators mapped onto five ordinal bands.
//
// Everything in this package is pure. Functions never retain or mutate their
// inputs, so they are safe to call from any number of goroutines.
package ibr

// Code identifies one of the canonical sub-indicators.
type Code string

// Canonical parameter codes.
const (
	VCA Code = "VCA" // vegetation carbon assimilation
	MDI Code = "MDI" // microbial diversity
	PTS Code = "PTS" // phenological timing stability
	HFI Code = "HFI" // hydrological function
	BNC Code = "BNC" // biogeochemical nutrient cycling
	SGH Code = "SGH" // species genetic health
	AES Code = "AES" // anthropogenic exposure
	TMI Code = "TMI" // trophic network integrity
	RRC Code = "RRC" // recovery and regeneration capacity
)

// canonical fixes the iteration order used for every accumulation.
var canonical = [...]Code{VCA, MDI, PTS, HFI, BNC, SGH, AES, TMI, RRC}

var weights = map[Code]float64{
	VCA: 0.20,
	MDI: 0.15,
	PTS: 0.12,
	HFI: 0.11,
	BNC: 0.10,
	SGH: 0.09,
	AES: 0.08,
	TMI: 0.08,
	RRC: 0.07,
}

// priorSD holds the prior standard deviation of each canonical weight.
var priorSD = map[Code]float64{
	VCA: 0.03,
	MDI: 0.04,
	PTS: 0.05,
	HFI: 0.04,
	BNC: 0.03,
	SGH: 0.05,
	AES: 0.06,
	TMI: 0.05,
	RRC: 0.06,
}

// DefaultUncertainty is the per-parameter standard deviation assumed when the
// caller does not supply one.
const DefaultUncertainty = 0.05

// Parameters maps codes to values that are expected to lie in [0,1].
type Parameters map[Code]float64

// Codes returns the canonical codes in weight order.
func Codes() []Code {
	out := make([]Code, len(canonical))
	copy(out, canonical[:])
	return out
}

// IsCanonical reports whether c is one of the nine canonical codes.
func IsCanonical(c Code) bool {
	_, ok := weights[c]
	return ok
}

// Weight returns the canonical weight of c.
func Weight(c Code) (float64, bool) {
	w, ok := weights[c]
	return w, ok
}

// Weights returns a copy of the canonical weight table.
func Weights() map[Code]float64 {
	out := make(map[Code]float64, len(weights))
	for c, w := range weights {
		out[c] = w
	}
	return out
}

// PriorSD returns a copy of the prior standard deviation of each weight.
func PriorSD() map[Code]float64 {
	out := make(map[Code]float64, len(priorSD))
	for c, sd := range priorSD {
		out[c] = sd
	}
	return out
}

// Band is an ordinal classification of an IBR score.
type Band string

// Bands from healthiest to most degraded.
const (
	Pristine   Band = "PRISTINE"
	Functional Band = "FUNCTIONAL"
	Impaired   Band = "IMPAIRED"
	Degraded   Band = "DEGRADED"
	Collapsed  Band = "COLLAPSED"
)

// Threshold is the exclusive lower bound a score must exceed to reach Band.
type Threshold struct {
	Band  Band    `json:"band"`
	Above float64 `json:"above"`
}

var thresholds = [...]Threshold{
	{Band: Pristine, Above: 0.88},
	{Band: Functional, Above: 0.75},
	{Band: Impaired, Above: 0.60},
	{Band: Degraded, Above: 0.45},
}

// Thresholds returns the band boundaries, highest first. Collapsed has no
// lower bound and is not listed.
func Thresholds() []Threshold {
	out := make([]Threshold, len(thresholds))
	copy(out, thresholds[:])
	return out
}

// Bands returns every band, healthiest first.
func Bands() []Band {
	return []Band{Pristine, Functional, Impaired, Degraded, Collapsed}
}

// Classify maps a score onto its band. Comparisons are strict, so a score equal
// to a boundary falls into the lower band.
func Classify(score float64) Band {
	for _, t := range thresholds {
		if score > t.Above {
			return t.Band
		}
	}
	return Collapsed
}

// Ordinal ranks b from 0 (Collapsed) to 4 (Pristine). Unknown bands yield -1.
func (b Band) Ordinal() int {
	switch b {
	case Pristine:
		return 4
	case Functional:
		return 3
	case Impaired:
		return 2
	case Degraded:
		return 1
	case Collapsed:
		return 0
	default:
		return -1
	}
}

// Valid reports whether b is a known band.
func (b Band) Valid() bool { return b.Ordinal() >= 0 }
