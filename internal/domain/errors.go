package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("job not found")
	ErrEmptyScript    = errors.New("script is empty")
	ErrUnknownProfile = errors.New("unknown platform profile")
	ErrConflict       = errors.New("job was modified concurrently")
	ErrNotRetryable   = errors.New("job is not in a failed state")
	ErrQueueFull      = errors.New("job queue is full")
)

// ErrorKind is the short failure classification persisted on a job record.
type ErrorKind string

const (
	ErrKindNone            ErrorKind = ""
	ErrKindEmptyScript     ErrorKind = "empty_script"
	ErrKindProviderTimeout ErrorKind = "provider_timeout"
	ErrKindProviderError   ErrorKind = "provider_error"
	ErrKindEncoding        ErrorKind = "encoding_error"
	ErrKindCancelled       ErrorKind = "cancelled"
	ErrKindTimeout         ErrorKind = "timeout"
)

// Classify maps a pipeline error to the kind stored on the failed job.
// Provider errors never reach here: they are absorbed as fallback content
// at the call site, so anything unrecognized is an encoding/environment
// failure.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrKindNone
	case errors.Is(err, ErrEmptyScript):
		return ErrKindEmptyScript
	case errors.Is(err, context.Canceled):
		return ErrKindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	default:
		return ErrKindEncoding
	}
}
