package loadtest

import "errors"

var (
	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrDrainTimeout is returned when the queue does not empty in time.
	ErrDrainTimeout = errors.New("timed out waiting for the queue to drain")
	// ErrVerification is returned when server results disagree with local scores.
	ErrVerification = errors.New("verification failed")
	// ErrInvalidConfig is returned for unusable run settings.
	ErrInvalidConfig = errors.New("invalid load test config")
)
