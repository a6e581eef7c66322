package stats

import "errors"

// Sentinel errors.
var (
	ErrShape            = errors.New("malformed table")
	ErrUnknownColumn    = errors.New("unknown column")
	ErrUnknownMethod    = errors.New("unknown method")
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidWindow    = errors.New("invalid window")
	ErrSingular         = errors.New("singular system")
)
