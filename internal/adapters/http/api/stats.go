package api

import (
	"context"
	"net/http"

	"github.com/okian/biotica/internal/domain/ibr"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
	Summary(ctx context.Context) (ibr.Summary, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /status requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}

// HandleSummary handles GET /summary: aggregate statistics over the latest
// score of every ranked site.
func (h *StatsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.summary"
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	sum, err := h.statsProvider.Summary(r.Context())
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
