package models

import (
	"testing"
	"time"
)

func TestJobKey(t *testing.T) {
	job := Job{
		Dataset:   DatasetRef{Name: "wbc"},
		Candidate: CandidateSpec{Name: "knn"},
		Config:    NewConfiguration(map[string]Value{"k": IntValue(3)}),
	}
	key := job.Key()
	if key.String() != "wbc|knn|k=3" {
		t.Errorf("unexpected key %q", key.String())
	}
	if key.Group() != "wbc|knn" {
		t.Errorf("unexpected group %q", key.Group())
	}
}

func TestJobStateTerminal(t *testing.T) {
	tests := []struct {
		state    JobState
		name     string
		terminal bool
	}{
		{JobPending, "pending", false},
		{JobRunning, "running", false},
		{JobSucceeded, "succeeded", true},
		{JobFailed, "failed", true},
	}

	for _, tt := range tests {
		if tt.state.String() != tt.name {
			t.Errorf("String() = %q, expected %q", tt.state.String(), tt.name)
		}
		if tt.state.Terminal() != tt.terminal {
			t.Errorf("%s.Terminal() = %v", tt.name, tt.state.Terminal())
		}
	}
}

func TestJobElapsed(t *testing.T) {
	start := time.Now()
	job := Job{StartedAt: start}
	if job.Elapsed() != 0 {
		t.Error("elapsed should be zero before the job ends")
	}
	job.EndedAt = start.Add(250 * time.Millisecond)
	if job.Elapsed() != 250*time.Millisecond {
		t.Errorf("unexpected elapsed %v", job.Elapsed())
	}
}

func TestParamHelpers(t *testing.T) {
	r := RangeParam("k", IntValue(1), IntValue(5), IntValue(2))
	if r.Kind != ParameterRange || r.Name != "k" {
		t.Errorf("unexpected range spec %+v", r)
	}
	s := SetParam("metric", StringValue("l1"), StringValue("l2"))
	if s.Kind != ParameterSet || len(s.Values) != 2 {
		t.Errorf("unexpected set spec %+v", s)
	}
	f := FixedParam("seed", IntValue(0))
	if f.Kind != ParameterFixed || !f.Value.Equal(IntValue(0)) {
		t.Errorf("unexpected fixed spec %+v", f)
	}
}
