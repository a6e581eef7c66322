package api

import (
	"errors"
	"net/http"

	"github.com/okian/biotica/internal/adapters/repository"
	service "github.com/okian/biotica/internal/app"
	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/stats"
)

// statusOf maps an upstream error to an HTTP status and error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ibr.ErrInvalidParameter):
		return http.StatusBadRequest, "invalid_parameter"
	case errors.Is(err, ibr.ErrUnknownCode),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, repository.ErrInvalidID),
		errors.Is(err, stats.ErrShape),
		errors.Is(err, stats.ErrUnknownColumn),
		errors.Is(err, stats.ErrUnknownMethod),
		errors.Is(err, stats.ErrInvalidWindow),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, stats.ErrInsufficientData),
		errors.Is(err, stats.ErrSingular),
		errors.Is(err, ibr.ErrEmptyBatch):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case isNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrStale):
		return http.StatusConflict, "stale"
	case errors.Is(err, service.ErrBackpressure), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with the status statusOf assigns to it.
func fail(w http.ResponseWriter, op string, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, Wrap(op, err))
}
