package repository

import "errors"

// Sentinel errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrInvalidID         = errors.New("invalid measurement")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
	ErrStale             = errors.New("measurement older than retained history")
)
