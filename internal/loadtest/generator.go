package loadtest

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/biotica/internal/domain/ibr"
)

// profile is the centre and spread of the values drawn for one site.
type profile struct {
	centre float64
	spread float64
}

// Profiles roughly one per band, weighted toward the middle.
var profiles = []profile{
	{centre: 0.93, spread: 0.04},
	{centre: 0.82, spread: 0.06},
	{centre: 0.82, spread: 0.06},
	{centre: 0.68, spread: 0.08},
	{centre: 0.68, spread: 0.08},
	{centre: 0.52, spread: 0.08},
	{centre: 0.30, spread: 0.15},
}

// dropRate is the chance that a canonical parameter is left out.
const dropRate = 0.1

type generator struct {
	rng   *rand.Rand
	start time.Time
}

func newGenerator(seed uint64, start time.Time) *generator {
	return &generator{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		start: start.UTC().Truncate(time.Second),
	}
}

// generate spreads n measurements round-robin over sites new site ids. Each
// site keeps one profile and its timestamps strictly increase, so the last
// measurement generated for a site is the one it is ranked by.
func (g *generator) generate(n, sites int) []Measurement {
	sites = max(1, min(sites, n))
	ids := make([]string, sites)
	profs := make([]profile, sites)
	for i := range ids {
		ids[i] = "site-" + uuid.NewString()
		profs[i] = profiles[g.rng.IntN(len(profiles))]
	}

	out := make([]Measurement, n)
	for i := range out {
		s := i % sites
		out[i] = Measurement{
			MeasurementID: uuid.NewString(),
			SiteID:        ids[s],
			Parameters:    g.parameters(profs[s]),
			TS:            g.start.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		}
	}
	return out
}

func (g *generator) parameters(p profile) map[string]float64 {
	codes := ibr.Codes()
	out := make(map[string]float64, len(codes))
	for _, c := range codes {
		if g.rng.Float64() < dropRate {
			continue
		}
		v := p.centre + p.spread*g.rng.NormFloat64()
		out[string(c)] = math.Round(math.Min(1, math.Max(0, v))*1e4) / 1e4
	}
	if len(out) == 0 {
		out[string(codes[0])] = p.centre
	}
	return out
}

// expectedLatest returns the last measurement of every site, which is the one
// the server ranks it by.
func expectedLatest(ms []Measurement) map[string]Measurement {
	out := make(map[string]Measurement)
	for _, m := range ms {
		out[m.SiteID] = m
	}
	return out
}

func toParameters(values map[string]float64) ibr.Parameters {
	p := make(ibr.Parameters, len(values))
	for k, v := range values {
		p[ibr.Code(k)] = v
	}
	return p
}
