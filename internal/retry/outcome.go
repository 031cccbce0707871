package retry

import "likevault/internal/services"

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeFailure
	outcomeFatal
)

// Outcome is the result of one attempt.
type Outcome[T any] struct {
	kind  outcomeKind
	value T
	err   error
}

// Success ends the run with value.
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{kind: outcomeSuccess, value: value}
}

// Failure asks for another attempt after the backoff delay.
func Failure[T any](err error) Outcome[T] {
	return Outcome[T]{kind: outcomeFailure, err: err}
}

// Fatal ends the run without further attempts.
func Fatal[T any](err error) Outcome[T] {
	return Outcome[T]{kind: outcomeFatal, err: err}
}

// FromError converts a conventional (value, error) pair, classifying the
// error with services.Retryable.
func FromError[T any](value T, err error) Outcome[T] {
	switch {
	case err == nil:
		return Success(value)
	case services.Retryable(err):
		return Failure[T](err)
	default:
		return Fatal[T](err)
	}
}

// Status describes how a run ended.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusExhausted Status = "exhausted"
	StatusAborted   Status = "aborted"
	StatusCanceled  Status = "canceled"
)

// Result is the final value of a run.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	Status   Status
}

// OK reports whether the run succeeded.
func (r Result[T]) OK() bool {
	return r.Status == StatusSucceeded
}
