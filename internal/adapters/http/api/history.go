package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/biotica/internal/domain/model"
)

// HistoryDependencies reads a site's measurement history.
type HistoryDependencies interface {
	History(ctx context.Context, siteID string, limit, window int) (model.SiteHistory, error)
}

// HistoryHandler handles site history requests.
type HistoryHandler struct {
	deps     HistoryDependencies
	maxLimit int
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies, maxLimit int) *HistoryHandler {
	return &HistoryHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetHistory handles GET /sites/{site_id}/history?limit=N&window=W.
// Without limit every stored measurement is returned.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/sites/")
	site, ok := strings.CutSuffix(rest, "/history")
	if !ok || site == "" || strings.Contains(site, "/") {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}

	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), 0, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	window := 0
	if raw := q.Get("window"); raw != "" {
		if window, err = strconv.Atoi(raw); err != nil || window < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}

	hist, err := h.deps.History(r.Context(), site, limit, window)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}
