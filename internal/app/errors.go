package service

import "errors"

// Sentinel errors returned by Service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("backpressure")
	ErrInvalidInput = errors.New("invalid input")
)
