package api

import (
	"net/http"

	"github.com/okian/biotica/internal/domain/ibr"
)

// WeightsHandler serves the canonical weights and band thresholds.
type WeightsHandler struct{}

// NewWeightsHandler creates a new weights handler.
func NewWeightsHandler() *WeightsHandler {
	return &WeightsHandler{}
}

type weightsResponse struct {
	Weights    map[ibr.Code]float64 `json:"weights"`
	PriorSD    map[ibr.Code]float64 `json:"prior_sd"`
	Thresholds []ibr.Threshold      `json:"thresholds"`
	Bands      []ibr.Band           `json:"bands"`
}

// HandleWeights handles GET /weights requests.
func (h *WeightsHandler) HandleWeights(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, weightsResponse{
		Weights:    ibr.Weights(),
		PriorSD:    ibr.PriorSD(),
		Thresholds: ibr.Thresholds(),
		Bands:      ibr.Bands(),
	})
}
