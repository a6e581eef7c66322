package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/biotica/internal/domain/model"
)

// MeasurementDependencies accepts asynchronous submissions and reads stored
// measurements.
type MeasurementDependencies interface {
	// Submit queues a measurement. It reports duplicates in the receipt and
	// fails with a backpressure error when the queue is full.
	Submit(ctx context.Context, sub model.Submission) (model.Receipt, error)
	Measurement(ctx context.Context, id string) (model.Measurement, error)
}

// MeasurementHandler handles measurement requests.
type MeasurementHandler struct {
	deps MeasurementDependencies
}

// NewMeasurementHandler creates a new measurement handler.
func NewMeasurementHandler(deps MeasurementDependencies) *MeasurementHandler {
	return &MeasurementHandler{deps: deps}
}

// HandleSubmit handles POST /measurements: 202 when queued, 200 for a
// duplicate id and 429 under backpressure.
func (h *MeasurementHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_measurement"
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req computeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	params, err := req.parameters()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_parameter", WrapKind(op, ErrInvalidParameter, err))
		return
	}
	ts, err := req.timestamp()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sub := model.Submission{
		ID:         strings.TrimSpace(req.MeasurementID),
		SiteID:     strings.TrimSpace(req.SiteID),
		Parameters: params,
		TS:         ts,
	}

	receipt, err := h.deps.Submit(r.Context(), sub)
	if err != nil {
		fail(w, op, err)
		return
	}
	ack := ackResponse{
		Status:        string(receipt.Status),
		Duplicate:     receipt.Duplicate,
		MeasurementID: receipt.MeasurementID,
		SiteID:        receipt.SiteID,
	}
	if receipt.Duplicate {
		writeJSON(w, http.StatusOK, ack)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

// HandleGet handles GET /measurements/{measurement_id}.
func (h *MeasurementHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_measurement"
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := pathParam(r.URL.Path, "/measurements/")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	m, err := h.deps.Measurement(r.Context(), id)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// pathParam returns the single path segment after prefix.
func pathParam(path, prefix string) (string, bool) {
	p := strings.TrimPrefix(path, prefix)
	if p == "" || p == path || strings.Contains(p, "/") {
		return "", false
	}
	return p, true
}
