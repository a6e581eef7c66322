// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/biotica/internal/adapters/repository"
	"github.com/okian/biotica/internal/domain/ibr"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ComputeDependencies
	MeasurementDependencies
	LeaderboardDependencies
	RankDependencies
	HistoryDependencies
	DiagnosticsDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = repository.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	computeHandler     *ComputeHandler
	measurementHandler *MeasurementHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	historyHandler     *HistoryHandler
	diagnosticsHandler *DiagnosticsHandler
	weightsHandler     *WeightsHandler
	statsHandler       *StatsHandler
	healthHandler      *HealthHandler
	dashboardHandler   *dashboardHandler

	corsOrigin string
	live       http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCORSOrigin sets Access-Control-Allow-Origin. Defaults to "*".
func WithCORSOrigin(origin string) ServerOption {
	return func(s *Server) {
		if origin != "" {
			s.corsOrigin = origin
		}
	}
}

// WithLiveFeed serves h at /ws.
func WithLiveFeed(h http.Handler) ServerOption {
	return func(s *Server) { s.live = h }
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// leaderboard and history page size.
func NewServer(deps Dependencies, maxLimit int, opts ...ServerOption) *Server {
	s := &Server{
		computeHandler:     NewComputeHandler(deps),
		measurementHandler: NewMeasurementHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		historyHandler:     NewHistoryHandler(deps, maxLimit),
		diagnosticsHandler: NewDiagnosticsHandler(deps),
		weightsHandler:     NewWeightsHandler(),
		statsHandler:       NewStatsHandler(deps),
		healthHandler:      NewHealthHandler(),
		dashboardHandler:   newDashboardHandler(),
		corsOrigin:         "*",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, CORSMiddleware(MetricsMiddleware(h, endpoint), s.corsOrigin))
	}

	route("/healthz", "healthz", s.healthHandler.HandleHealth)
	route("/metrics", "metrics", s.healthHandler.HandleHealth)
	route("/status", "status", s.statsHandler.HandleStats)
	route("/summary", "summary", s.statsHandler.HandleSummary)
	route("/weights", "weights", s.weightsHandler.HandleWeights)

	route("/ibr", "ibr", s.computeHandler.HandleCompute)
	route("/validate", "validate", s.computeHandler.HandleValidate)
	route("/sensitivity", "sensitivity", s.diagnosticsHandler.HandleSensitivity)

	route("/measurements", "measurements", s.measurementHandler.HandleSubmit)
	route("/measurements/", "measurement", s.measurementHandler.HandleGet)
	route("/leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	route("/rank/", "rank", s.rankHandler.HandleGetRank)
	route("/sites/", "history", s.historyHandler.HandleGetHistory)

	route("/diagnostics/describe", "describe", s.diagnosticsHandler.HandleDescribe)
	route("/diagnostics/correlation", "correlation", s.diagnosticsHandler.HandleCorrelation)
	route("/diagnostics/weights", "estimate_weights", s.diagnosticsHandler.HandleWeights)
	route("/diagnostics/tipping-point", "tipping_point", s.diagnosticsHandler.HandleTippingPoint)

	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	if s.live != nil {
		mux.Handle("/ws", s.live)
	}
}

type ackResponse struct {
	Status        string `json:"status"`
	Duplicate     bool   `json:"duplicate"`
	MeasurementID string `json:"measurement_id"`
	SiteID        string `json:"site_id"`
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	var ipe *ibr.InvalidParameterError
	if errors.As(err, &ipe) {
		resp.Details = ipe.Messages
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a single JSON document from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// isNotFound reports whether err means the requested record does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, ErrNotFound)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", OPTIONS")
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	return false
}
