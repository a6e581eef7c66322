package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/model"
)

// ComputeDependencies computes and optionally stores a result.
type ComputeDependencies interface {
	Compute(ctx context.Context, id, siteID string, params ibr.Parameters, ts time.Time) (model.Measurement, error)
}

// ComputeHandler serves POST /ibr and POST /validate.
type ComputeHandler struct {
	deps ComputeDependencies
}

// NewComputeHandler creates a new compute handler.
func NewComputeHandler(deps ComputeDependencies) *ComputeHandler {
	return &ComputeHandler{deps: deps}
}

// computeRequest is the body of POST /ibr and POST /measurements. Raw field
// measurements, when present, derive VCA and MDI over the given parameters.
type computeRequest struct {
	Parameters    map[string]any       `json:"parameters"`
	Raw           *ibr.RawMeasurements `json:"raw_measurements,omitempty"`
	MeasurementID string               `json:"measurement_id,omitempty"`
	SiteID        string               `json:"site_id,omitempty"`
	TS            string               `json:"timestamp,omitempty"`
}

// parameters parses and range-checks the request values.
func (c computeRequest) parameters() (ibr.Parameters, error) {
	params, err := ibr.ValidateValues(c.Parameters)
	if err != nil {
		return nil, err
	}
	if c.Raw != nil {
		params = ibr.DeriveParameters(params, *c.Raw)
		if err := ibr.ValidateStrict(params); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// timestamp parses the optional RFC3339 timestamp; empty yields the zero time.
func (c computeRequest) timestamp() (time.Time, error) {
	if c.TS == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, c.TS)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

type computeResponse struct {
	Score          float64              `json:"ibr"`
	Classification ibr.Band             `json:"classification"`
	Contributions  map[ibr.Code]float64 `json:"contributions"`
	WeightsUsed    float64              `json:"weights_used"`
	Timestamp      time.Time            `json:"timestamp"`
	MeasurementID  string               `json:"measurement_id,omitempty"`
	SiteID         string               `json:"site_id,omitempty"`
	Uncertainty    float64              `json:"uncertainty"`
	Confidence     float64              `json:"confidence"`
	Warnings       []string             `json:"warnings"`
}

// HandleCompute handles POST /ibr.
func (h *ComputeHandler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.compute"
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

	m, err := h.deps.Compute(r.Context(), req.MeasurementID, req.SiteID, params, ts)
	if err != nil {
		fail(w, op, err)
		return
	}
	res := m.Result
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, computeResponse{
		Score:          res.Score,
		Classification: res.Classification,
		Contributions:  res.Contributions,
		WeightsUsed:    res.WeightUsed,
		Timestamp:      m.TS,
		MeasurementID:  m.ID,
		SiteID:         m.SiteID,
		Uncertainty:    res.Uncertainty,
		Confidence:     res.Confidence,
		Warnings:       warnings,
	})
}

type validateResponse struct {
	Valid    bool     `json:"valid"`
	Messages []string `json:"messages"`
}

// HandleValidate handles POST /validate. Type and range failures are
// reported in the body with status 200.
func (h *ComputeHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.validate"
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req computeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	params, messages := ibr.ParseValues(req.Parameters)
	_, rangeMessages := ibr.Validate(params)
	messages = append(messages, rangeMessages...)
	writeJSON(w, http.StatusOK, validateResponse{Valid: len(messages) == 0, Messages: messages})
}
