package loadtest

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/biotica/internal/domain/ibr"
)

// scoreTolerance absorbs rounding in stores that persist scores as text.
const scoreTolerance = 1e-9

// maxProblems caps how many individual problems a report keeps.
const maxProblems = 20

// Report lists every disagreement found between the server and local scores.
type Report struct {
	Checked    int
	Mismatches int
	Problems   []string
}

func (r *Report) addf(format string, args ...any) {
	r.Mismatches++
	if len(r.Problems) < maxProblems {
		r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
	}
}

// OK reports whether nothing disagreed.
func (r *Report) OK() bool { return r.Mismatches == 0 }

type expectation struct {
	site   string
	m      Measurement
	result ibr.Result
}

// verify recomputes every site's latest measurement locally and checks the
// served rank entries and leaderboard against it. Sites not generated by this
// run may share the leaderboard, so ranks are only compared relative to each
// other.
func verify(latest map[string]Measurement, ranks map[string]Entry, board []Entry) *Report {
	rep := &Report{}

	exp := make([]expectation, 0, len(latest))
	for site, m := range latest {
		exp = append(exp, expectation{site: site, m: m, result: ibr.Compute(toParameters(m.Parameters))})
	}
	sort.Slice(exp, func(i, j int) bool {
		if exp[i].result.Score != exp[j].result.Score {
			return exp[i].result.Score > exp[j].result.Score
		}
		return exp[i].site < exp[j].site
	})

	prevRank := 0
	prevScore := math.Inf(1)
	for _, e := range exp {
		got, ok := ranks[e.site]
		if !ok {
			continue
		}
		rep.Checked++
		if got.MeasurementID != e.m.MeasurementID {
			rep.addf("site %s ranked by measurement %s, want latest %s", e.site, got.MeasurementID, e.m.MeasurementID)
		}
		if math.Abs(got.Score-e.result.Score) > scoreTolerance {
			rep.addf("site %s score %.12f, local %.12f", e.site, got.Score, e.result.Score)
		}
		if got.Classification != string(e.result.Classification) {
			rep.addf("site %s band %s, local %s", e.site, got.Classification, e.result.Classification)
		}
		if got.Rank < prevRank || (got.Rank == prevRank && e.result.Score < prevScore-scoreTolerance) {
			rep.addf("site %s rank %d out of order after rank %d", e.site, got.Rank, prevRank)
		}
		prevRank, prevScore = got.Rank, e.result.Score
	}

	for i, e := range board {
		if i > 0 {
			prev := board[i-1]
			if e.Score > prev.Score {
				rep.addf("leaderboard entry %d scores %.6f above entry %d (%.6f)", i, e.Score, i-1, prev.Score)
			}
			if e.Rank < prev.Rank {
				rep.addf("leaderboard entry %d rank %d below entry %d rank %d", i, e.Rank, i-1, prev.Rank)
			}
		}
		if r, ok := ranks[e.SiteID]; ok && r.Rank != e.Rank {
			rep.addf("site %s leaderboard rank %d, rank lookup %d", e.SiteID, e.Rank, r.Rank)
		}
	}
	return rep
}
