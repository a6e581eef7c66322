package loadtest

import "time"

// Config holds configuration for a load test run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Measurements int           // Number of measurements to submit
	Sites        int           // Distinct sites the measurements are spread over
	TopN         int           // Leaderboard entries to fetch
	Workers      int           // Concurrent HTTP workers
	Timeout      time.Duration // Per-request timeout
	DrainTimeout time.Duration // How long to wait for the queue to empty
	PollInterval time.Duration // Status polling interval while draining
	Seed         uint64        // Generator seed; zero picks one from the clock
	OutputFile   string        // Where the generated measurements are written; empty skips it
}

// Measurement is the POST /measurements body.
type Measurement struct {
	MeasurementID string             `json:"measurement_id"`
	SiteID        string             `json:"site_id"`
	Parameters    map[string]float64 `json:"parameters"`
	TS            string             `json:"timestamp"`
}

// Entry is a ranked site as served by /rank and /leaderboard.
type Entry struct {
	Rank           int     `json:"rank"`
	SiteID         string  `json:"site_id"`
	Score          float64 `json:"ibr"`
	Classification string  `json:"classification"`
	MeasurementID  string  `json:"measurement_id"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats summarises a run.
type Stats struct {
	Generated          int
	Submitted          int
	Accepted           int
	Duplicate          int
	Failed             int
	RanksRetrieved     int
	LeaderboardEntries int
	ScoreMismatches    int
	Duration           time.Duration
}

// SuccessRate is the share of submissions that were accepted, in percent.
func (s Stats) SuccessRate() float64 {
	if s.Submitted == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Submitted) * 100
}

// Throughput is submissions per second over the whole run.
func (s Stats) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Submitted) / s.Duration.Seconds()
}
