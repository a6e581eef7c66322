package ibr

import (
	"errors"
	"strings"
)

// Sentinel errors.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUnknownCode      = errors.New("unknown parameter code")
	ErrEmptyBatch       = errors.New("empty batch")
)

// InvalidParameterError lists every parameter that failed validation.
type InvalidParameterError struct {
	Messages []string
}

func (e *InvalidParameterError) Error() string {
	if len(e.Messages) == 0 {
		return ErrInvalidParameter.Error()
	}
	return ErrInvalidParameter.Error() + ": " + strings.Join(e.Messages, "; ")
}

// Is lets errors.Is match ErrInvalidParameter.
func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}
