package models

import (
	"time"
)

// ParameterKind describes how a parameter's value set is declared
type ParameterKind string

const (
	ParameterFixed ParameterKind = "fixed"
	ParameterRange ParameterKind = "range"
	ParameterSet   ParameterKind = "set"
)

// ParameterSpec declares the values one hyper-parameter takes
type ParameterSpec struct {
	Name string        `json:"name"`
	Kind ParameterKind `json:"kind"`

	// Fixed
	Value Value `json:"-"`

	// Range, inclusive of Max when reachable by Step
	Min  Value `json:"-"`
	Max  Value `json:"-"`
	Step Value `json:"-"`

	// Set, in declared order
	Values []Value `json:"-"`
}

// FixedParam declares a single-valued parameter
func FixedParam(name string, v Value) ParameterSpec {
	return ParameterSpec{Name: name, Kind: ParameterFixed, Value: v}
}

// RangeParam declares a min/max/step parameter
func RangeParam(name string, min, max, step Value) ParameterSpec {
	return ParameterSpec{Name: name, Kind: ParameterRange, Min: min, Max: max, Step: step}
}

// SetParam declares an enumerated parameter
func SetParam(name string, values ...Value) ParameterSpec {
	return ParameterSpec{Name: name, Kind: ParameterSet, Values: values}
}

// Label is the ground truth of one dataset row
type Label int8

const (
	LabelInlier  Label = 0
	LabelOutlier Label = 1
)

// ScoreVector holds one outlier score per dataset row, in row order
type ScoreVector []float64

// DatasetRef names a dataset and where a provider can find it
type DatasetRef struct {
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Unlabeled bool   `json:"unlabeled,omitempty" yaml:"unlabeled,omitempty"`
}

// CandidateSpec names a candidate and how to build its adapter
type CandidateSpec struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Image    string   `json:"image,omitempty"`
	Command  []string `json:"command,omitempty"`
	Required []string `json:"required,omitempty"`
}

// JobKey identifies one cell of the score matrix
type JobKey struct {
	Dataset   string
	Candidate string
	Config    Configuration
}

// String returns the map key form of the job key
func (k JobKey) String() string {
	return k.Dataset + "|" + k.Candidate + "|" + k.Config.Key()
}

// Group returns the (dataset, candidate) scheduling group
func (k JobKey) Group() string {
	return k.Dataset + "|" + k.Candidate
}

// JobState represents the lifecycle state of a job
type JobState int

const (
	JobPending JobState = iota
	JobRunning
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job is one unit of work: one configuration of one candidate against one
// dataset. Attempt counts executions started so far.
type Job struct {
	ID        string
	Dataset   DatasetRef
	Candidate CandidateSpec
	Config    Configuration

	Attempt int
	State   JobState
	Err     error

	SubmittedAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time
}

// Key returns the score matrix key of the job
func (j Job) Key() JobKey {
	return JobKey{Dataset: j.Dataset.Name, Candidate: j.Candidate.Name, Config: j.Config}
}

// Elapsed returns the duration of the latest attempt
func (j Job) Elapsed() time.Duration {
	if j.StartedAt.IsZero() || j.EndedAt.IsZero() {
		return 0
	}
	return j.EndedAt.Sub(j.StartedAt)
}
