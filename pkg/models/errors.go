package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameterSpec = errors.New("invalid parameter spec")
	ErrCandidateExecution   = errors.New("candidate execution error")
	ErrWorkerTimeout        = errors.New("worker timeout")
	ErrWorkerDisconnected   = errors.New("worker disconnected")
	ErrScoreShapeMismatch   = errors.New("score shape mismatch")
	ErrDatasetLoad          = errors.New("dataset load error")
	ErrRunCancelled         = errors.New("run cancelled")
	ErrJobAbandoned         = errors.New("job abandoned")
)

// Error attaches context to one of the sentinel kinds above
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an Error of the given kind
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError tags err with kind unless it already carries it
func WrapError(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// IsTransient reports whether a failed job may be retried
func IsTransient(err error) bool {
	return errors.Is(err, ErrWorkerTimeout) || errors.Is(err, ErrWorkerDisconnected)
}

// Reason maps an error to the short reason code recorded for missing keys
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameterSpec):
		return "invalid_parameter_spec"
	case errors.Is(err, ErrCandidateExecution):
		return "candidate_execution_error"
	case errors.Is(err, ErrWorkerTimeout):
		return "worker_timeout"
	case errors.Is(err, ErrWorkerDisconnected):
		return "worker_disconnected"
	case errors.Is(err, ErrScoreShapeMismatch):
		return "score_shape_mismatch"
	case errors.Is(err, ErrDatasetLoad):
		return "dataset_load_error"
	case errors.Is(err, ErrRunCancelled):
		return "cancelled"
	case errors.Is(err, ErrJobAbandoned):
		return "abandoned"
	default:
		return "error"
	}
}

// KindFromReason is the inverse of Reason. Unknown codes map to
// ErrCandidateExecution.
func KindFromReason(reason string) error {
	switch reason {
	case "invalid_parameter_spec":
		return ErrInvalidParameterSpec
	case "worker_timeout":
		return ErrWorkerTimeout
	case "worker_disconnected":
		return ErrWorkerDisconnected
	case "score_shape_mismatch":
		return ErrScoreShapeMismatch
	case "dataset_load_error":
		return ErrDatasetLoad
	case "cancelled":
		return ErrRunCancelled
	case "abandoned":
		return ErrJobAbandoned
	default:
		return ErrCandidateExecution
	}
}
