package ibr

import "math"

// Normalisation scales for raw field measurements.
const (
	laiScale     = 10.0
	gppScale     = 3000.0
	shannonScale = 5.0
	richnessCap  = 200.0
)

// DeriveVCA derives the vegetation carbon assimilation score from NDVI, leaf
// area index and gross primary productivity (g C m⁻² yr⁻¹).
func DeriveVCA(ndvi, lai, gpp float64) float64 {
	return math.Min((ndvi+lai/laiScale+gpp/gppScale)/3, 1)
}

// DeriveMDI derives the microbial diversity score from the Shannon index, the
// Chao1 richness estimate and the observed OTU count.
func DeriveMDI(shannon, chao1, otus float64) float64 {
	return math.Min((shannon/shannonScale+math.Min(chao1/richnessCap, 1)+math.Min(otus/richnessCap, 1))/3, 1)
}

// RawMeasurements holds the field measurements DeriveParameters understands.
// Nil groups are skipped.
type RawMeasurements struct {
	Vegetation *VegetationRaw `json:"vegetation,omitempty" yaml:"vegetation,omitempty"`
	Microbial  *MicrobialRaw  `json:"microbial,omitempty" yaml:"microbial,omitempty"`
}

// VegetationRaw feeds DeriveVCA.
type VegetationRaw struct {
	NDVI float64 `json:"ndvi" yaml:"ndvi"`
	LAI  float64 `json:"lai" yaml:"lai"`
	GPP  float64 `json:"gpp" yaml:"gpp"`
}

// MicrobialRaw feeds DeriveMDI.
type MicrobialRaw struct {
	Shannon float64 `json:"shannon" yaml:"shannon"`
	Chao1   float64 `json:"chao1" yaml:"chao1"`
	OTUs    float64 `json:"otus" yaml:"otus"`
}

// DeriveParameters derives every parameter the raw groups allow and merges them
// over base, which is not modified.
func DeriveParameters(base Parameters, raw RawMeasurements) Parameters {
	out := make(Parameters, len(base)+2)
	for c, v := range base {
		out[c] = v
	}
	if v := raw.Vegetation; v != nil {
		out[VCA] = DeriveVCA(v.NDVI, v.LAI, v.GPP)
	}
	if m := raw.Microbial; m != nil {
		out[MDI] = DeriveMDI(m.Shannon, m.Chao1, m.OTUs)
	}
	return out
}
