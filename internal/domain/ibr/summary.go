package ibr

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates many results.
type Summary struct {
	N                    int          `json:"n" yaml:"n"`
	MeanScore            float64      `json:"mean_score" yaml:"mean_score"`
	StdScore             float64      `json:"std_score" yaml:"std_score"`
	MinScore             float64      `json:"min_score" yaml:"min_score"`
	MaxScore             float64      `json:"max_score" yaml:"max_score"`
	ClassificationCounts map[Band]int `json:"classification_counts" yaml:"classification_counts"`
}

// Summarize reports the mean, population standard deviation, extremes and the
// band histogram of results. Every band appears in the histogram.
func Summarize(results []Result) (Summary, error) {
	if len(results) == 0 {
		return Summary{}, ErrEmptyBatch
	}

	scores := make([]float64, len(results))
	counts := make(map[Band]int, len(Bands()))
	for _, b := range Bands() {
		counts[b] = 0
	}
	for i, r := range results {
		scores[i] = r.Score
		counts[r.Classification]++
	}

	mean, variance := stat.PopMeanVariance(scores, nil)
	return Summary{
		N:                    len(results),
		MeanScore:            mean,
		StdScore:             math.Sqrt(variance),
		MinScore:             floats.Min(scores),
		MaxScore:             floats.Max(scores),
		ClassificationCounts: counts,
	}, nil
}
