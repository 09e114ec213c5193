package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEngineNotInitialized is returned when generation is attempted
	// before any successful Initialize. Calls fail fast rather than hang.
	ErrEngineNotInitialized = errors.New("inference engine not initialized")

	// ErrTaskCancelled marks tasks skipped because the request was
	// cancelled before they started.
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrTaskTimeout marks tasks that exceeded their per-task deadline.
	ErrTaskTimeout = errors.New("task timed out")
)

// RateLimitError aborts a request at the first pipeline stage. It is
// always preceded by an audit record.
type RateLimitError struct {
	UserID string
	Reason string
}

func (e *RateLimitError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("rate limit exceeded for user %s: %s", e.UserID, e.Reason)
	}
	return fmt.Sprintf("rate limit exceeded for user %s", e.UserID)
}

// InputRejectedError carries the validator's categorization of a prompt
// that failed input validation.
type InputRejectedError struct {
	Category string
	Severity string
	Reason   string
}

func (e *InputRejectedError) Error() string {
	return fmt.Sprintf("input rejected (%s/%s): %s", e.Category, e.Severity, e.Reason)
}

// ModelLoadError reports that a model could not be loaded into an engine,
// after load retries and backend fallback were exhausted.
type ModelLoadError struct {
	ModelID string
	Backend string
	Err     error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %s on backend %s: %v", e.ModelID, e.Backend, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError wraps a backend generation failure and records whether
// the retry policy may re-attempt it.
type InferenceError struct {
	Retryable bool
	Err       error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// UnknownError wraps a failure that matches no other error kind, so
// every surfaced failure carries a classification.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown error: %v", e.Err)
}

func (e *UnknownError) Unwrap() error { return e.Err }

// Retryable reports whether err is an inference failure the retry policy
// may re-attempt. Errors outside the taxonomy report false here; substring
// tag matching is applied separately by the retry config.
func Retryable(err error) bool {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// WrapUnknown returns err unchanged when it is already classified and
// wraps anything else in an UnknownError. Nil stays nil.
func WrapUnknown(err error) error {
	if err == nil {
		return nil
	}
	var (
		rl *RateLimitError
		ir *InputRejectedError
		ml *ModelLoadError
		ie *InferenceError
		ue *UnknownError
	)
	switch {
	case errors.Is(err, ErrEngineNotInitialized),
		errors.Is(err, ErrTaskCancelled),
		errors.Is(err, ErrTaskTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &rl),
		errors.As(err, &ir),
		errors.As(err, &ml),
		errors.As(err, &ie),
		errors.As(err, &ue):
		return err
	}
	return &UnknownError{Err: err}
}
