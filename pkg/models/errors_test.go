package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	err := Errorf(ErrCandidateExecution, "exit code %d", 2)
	if !errors.Is(err, ErrCandidateExecution) {
		t.Fatal("expected errors.Is to match the kind")
	}
	if err.Error() != "candidate execution error: exit code 2" {
		t.Errorf("unexpected message %q", err.Error())
	}

	var typed *Error
	if !errors.As(err, &typed) || typed.Msg != "exit code 2" {
		t.Errorf("expected errors.As to find *Error, got %v", typed)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(ErrDatasetLoad, nil) != nil {
		t.Error("wrapping nil should return nil")
	}

	cause := fmt.Errorf("open data.csv: no such file")
	err := WrapError(ErrDatasetLoad, cause)
	if !errors.Is(err, ErrDatasetLoad) || !errors.Is(err, cause) {
		t.Errorf("expected both kind and cause in chain: %v", err)
	}

	already := Errorf(ErrDatasetLoad, "bad row")
	if WrapError(ErrDatasetLoad, already) != already {
		t.Error("error already carrying the kind should be returned unchanged")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{ErrWorkerTimeout, true},
		{Errorf(ErrWorkerDisconnected, "worker w1"), true},
		{ErrCandidateExecution, false},
		{ErrScoreShapeMismatch, false},
		{context.Canceled, false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.expected {
			t.Errorf("IsTransient(%v) = %v, expected %v", tt.err, got, tt.expected)
		}
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{Errorf(ErrInvalidParameterSpec, "x"), "invalid_parameter_spec"},
		{WrapError(ErrCandidateExecution, errors.New("boom")), "candidate_execution_error"},
		{ErrWorkerTimeout, "worker_timeout"},
		{ErrWorkerDisconnected, "worker_disconnected"},
		{ErrScoreShapeMismatch, "score_shape_mismatch"},
		{ErrDatasetLoad, "dataset_load_error"},
		{ErrRunCancelled, "cancelled"},
		{ErrJobAbandoned, "abandoned"},
		{errors.New("other"), "error"},
	}

	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.expected {
			t.Errorf("Reason(%v) = %q, expected %q", tt.err, got, tt.expected)
		}
	}
}

func TestKindFromReasonRoundTrip(t *testing.T) {
	kinds := []error{
		ErrInvalidParameterSpec, ErrCandidateExecution, ErrWorkerTimeout, ErrWorkerDisconnected,
		ErrScoreShapeMismatch, ErrDatasetLoad, ErrRunCancelled, ErrJobAbandoned,
	}
	for _, kind := range kinds {
		if got := KindFromReason(Reason(kind)); got != kind {
			t.Errorf("KindFromReason(Reason(%v)) = %v", kind, got)
		}
	}
	if KindFromReason("segfault") != ErrCandidateExecution {
		t.Error("unknown reasons should map to ErrCandidateExecution")
	}
}
