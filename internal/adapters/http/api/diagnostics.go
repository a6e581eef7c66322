package api

import (
	"context"
	"net/http"

	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/stats"
)

// DiagnosticsDependencies runs the statistical diagnostics.
type DiagnosticsDependencies interface {
	Describe(ctx context.Context, t *stats.Table) []stats.Summary
	Correlate(ctx context.Context, t *stats.Table, method stats.Method) (stats.CorrelationMatrix, error)
	EstimateWeights(ctx context.Context, t *stats.Table, outcome string, method stats.Estimator) (stats.WeightEstimate, error)
	DetectTippingPoint(ctx context.Context, series []float64, window int, detrend bool) (stats.TippingResult, error)
	Sensitivity(ctx context.Context, base ibr.Parameters, code ibr.Code, steps int) ([]ibr.SensitivityResult, error)
}

// DiagnosticsHandler handles the /diagnostics endpoints and /sensitivity.
type DiagnosticsHandler struct {
	deps DiagnosticsDependencies
}

// NewDiagnosticsHandler creates a new diagnostics handler.
func NewDiagnosticsHandler(deps DiagnosticsDependencies) *DiagnosticsHandler {
	return &DiagnosticsHandler{deps: deps}
}

// tableRequest carries a column-oriented data set. Null cells are missing.
type tableRequest struct {
	Data    map[string][]*float64 `json:"data"`
	Method  string                `json:"method,omitempty"`
	Outcome string                `json:"outcome,omitempty"`
}

type tippingRequest struct {
	Series  []*float64 `json:"series"`
	Window  int        `json:"window,omitempty"`
	Detrend *bool      `json:"detrend,omitempty"`
}

type sensitivityRequest struct {
	Parameters map[string]any `json:"parameters"`
	Code       string         `json:"parameter,omitempty"`
	Steps      int            `json:"steps,omitempty"`
}

// decodeTable reads a tableRequest and builds its table. It writes the error
// response itself and reports whether the caller may continue.
func decodeTable(w http.ResponseWriter, r *http.Request, op string) (tableRequest, *stats.Table, bool) {
	if !allowMethod(w, r, http.MethodPost) {
		return tableRequest{}, nil, false
	}
	var req tableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return req, nil, false
	}
	t, err := stats.TableFromMap(req.Data)
	if err != nil {
		fail(w, op, err)
		return req, nil, false
	}
	return req, t, true
}

// HandleDescribe handles POST /diagnostics/describe.
func (h *DiagnosticsHandler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	const op = "api.describe"
	_, t, ok := decodeTable(w, r, op)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": h.deps.Describe(r.Context(), t)})
}

// HandleCorrelation handles POST /diagnostics/correlation.
func (h *DiagnosticsHandler) HandleCorrelation(w http.ResponseWriter, r *http.Request) {
	const op = "api.correlation"
	req, t, ok := decodeTable(w, r, op)
	if !ok {
		return
	}
	method, err := stats.ParseMethod(req.Method)
	if err != nil {
		fail(w, op, err)
		return
	}
	m, err := h.deps.Correlate(r.Context(), t, method)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleWeights handles POST /diagnostics/weights.
func (h *DiagnosticsHandler) HandleWeights(w http.ResponseWriter, r *http.Request) {
	const op = "api.estimate_weights"
	req, t, ok := decodeTable(w, r, op)
	if !ok {
		return
	}
	method, err := stats.ParseEstimator(req.Method)
	if err != nil {
		fail(w, op, err)
		return
	}
	outcome := req.Outcome
	if outcome == "" {
		outcome = "outcome"
	}
	est, err := h.deps.EstimateWeights(r.Context(), t, outcome, method)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// HandleTippingPoint handles POST /diagnostics/tipping-point.
func (h *DiagnosticsHandler) HandleTippingPoint(w http.ResponseWriter, r *http.Request) {
	const op = "api.tipping_point"
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req tippingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	series := stats.Float64s(req.Series)
	detrend := req.Detrend == nil || *req.Detrend
	res, err := h.deps.DetectTippingPoint(r.Context(), series, req.Window, detrend)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSensitivity handles POST /sensitivity. Without a parameter every
// canonical parameter is swept.
func (h *DiagnosticsHandler) HandleSensitivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.sensitivity"
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req sensitivityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	base, err := ibr.ValidateValues(req.Parameters)
	if err != nil {
		fail(w, op, err)
		return
	}
	results, err := h.deps.Sensitivity(r.Context(), base, ibr.Code(req.Code), req.Steps)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
