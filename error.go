package ratelimit

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes rate limiter errors.
type ErrorKind int

const (
	// ErrInvalidTickDuration indicates a tick duration below one microsecond.
	ErrInvalidTickDuration ErrorKind = iota
	// ErrInvalidRate indicates a rate that is negative, NaN, or infinite.
	ErrInvalidRate
	// ErrInvalidRule indicates a limiter rule failed validation.
	ErrInvalidRule
	// ErrProvider indicates a provider operation failed.
	ErrProvider
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidTickDuration:
		return "invalid tick duration"
	case ErrInvalidRate:
		return "invalid rate"
	case ErrInvalidRule:
		return "invalid rule"
	case ErrProvider:
		return "provider error"
	default:
		return "unknown error"
	}
}

// RateLimitError represents an error in rate limiter operations.
type RateLimitError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *RateLimitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RateLimitError) Unwrap() error {
	return e.Cause
}

// NewError creates a new RateLimitError.
func NewError(kind ErrorKind, message string) *RateLimitError {
	return &RateLimitError{Kind: kind, Message: message}
}

// WrapError creates a new RateLimitError wrapping an existing error.
func WrapError(kind ErrorKind, message string, cause error) *RateLimitError {
	return &RateLimitError{Kind: kind, Message: message, Cause: cause}
}

// IsInvalidTickDuration returns true if the error is an invalid tick duration error.
func IsInvalidTickDuration(err error) bool {
	var rErr *RateLimitError
	return errors.As(err, &rErr) && rErr.Kind == ErrInvalidTickDuration
}

// IsInvalidRate returns true if the error is an invalid rate error.
func IsInvalidRate(err error) bool {
	var rErr *RateLimitError
	return errors.As(err, &rErr) && rErr.Kind == ErrInvalidRate
}

// IsInvalidRule returns true if the error is an invalid rule error.
func IsInvalidRule(err error) bool {
	var rErr *RateLimitError
	return errors.As(err, &rErr) && rErr.Kind == ErrInvalidRule
}

// IsProvider returns true if the error is a provider error.
func IsProvider(err error) bool {
	var rErr *RateLimitError
	return errors.As(err, &rErr) && rErr.Kind == ErrProvider
}
