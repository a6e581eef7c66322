// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/stats"
)

// Measurement is one scored parameter set for a monitoring site.
type Measurement struct {
	ID         string         `json:"measurement_id"` // unique id, also the idempotency key
	SiteID     string         `json:"site_id"`        // monitoring plot or site
	Parameters ibr.Parameters `json:"parameters"`
	Result     ibr.Result     `json:"result"`
	TS         time.Time      `json:"timestamp"`
}

// Score is a shortcut for Result.Score.
func (m Measurement) Score() float64 { return m.Result.Score }

// Submission is an unscored measurement waiting in the queue.
type Submission struct {
	ID         string
	SiteID     string
	Parameters ibr.Parameters
	TS         time.Time
	Enqueued   time.Time
}

// SubmitStatus is the outcome of an asynchronous submission.
type SubmitStatus string

// Submission outcomes.
const (
	StatusAccepted  SubmitStatus = "accepted"
	StatusDuplicate SubmitStatus = "duplicate"
)

// Receipt acknowledges an asynchronous submission.
type Receipt struct {
	MeasurementID string       `json:"measurement_id"`
	SiteID        string       `json:"site_id"`
	Status        SubmitStatus `json:"status"`
	Duplicate     bool         `json:"duplicate"`
}

// SiteHistory is a site's stored measurements, oldest first, with an optional
// early-warning analysis of their scores.
type SiteHistory struct {
	SiteID       string               `json:"site_id"`
	Measurements []Measurement        `json:"measurements"`
	Scores       []float64            `json:"scores"`
	Tipping      *stats.TippingResult `json:"tipping_point,omitempty"`
}
