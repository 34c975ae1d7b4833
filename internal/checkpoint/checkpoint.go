// Package checkpoint persists committed score vectors and missing records
// so an interrupted suite can resume without recomputing finished keys.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/aggregator"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Store is an aggregator.Sink that can read back what it stored
type Store interface {
	aggregator.Sink
	// Load returns every entry stored for the run
	Load(ctx context.Context) ([]aggregator.Entry, error)
	Close() error
}

type param struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// record is the stored form of an entry or missing record
type record struct {
	JobID     string    `json:"job_id,omitempty"`
	Dataset   string    `json:"dataset"`
	Candidate string    `json:"candidate"`
	Config    []param   `json:"config"`
	Attempt   int       `json:"attempt,omitempty"`
	Scores    []float64 `json:"scores,omitempty"`
	ElapsedUs int64     `json:"elapsed_us,omitempty"`
	Committed time.Time `json:"committed_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func keyParams(k models.JobKey) []param {
	params := k.Config.Params()
	out := make([]param, len(params))
	for i, p := range params {
		out[i] = param{Name: p.Name, Kind: p.Value.Kind().String(), Value: p.Value.String()}
	}
	return out
}

func fromEntry(e aggregator.Entry) record {
	return record{
		JobID:     e.JobID,
		Dataset:   e.Key.Dataset,
		Candidate: e.Key.Candidate,
		Config:    keyParams(e.Key),
		Attempt:   e.Attempt,
		Scores:    e.Scores,
		ElapsedUs: e.Elapsed.Microseconds(),
		Committed: e.CommittedAt,
	}
}

func fromMissing(m aggregator.Missing) record {
	return record{
		JobID:     m.JobID,
		Dataset:   m.Key.Dataset,
		Candidate: m.Key.Candidate,
		Config:    keyParams(m.Key),
		Reason:    m.Reason,
		Error:     m.Error,
	}
}

func (r record) key() (models.JobKey, error) {
	params := make([]models.Param, len(r.Config))
	for i, p := range r.Config {
		kind, err := models.ParseValueKind(p.Kind)
		if err != nil {
			return models.JobKey{}, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		v, err := models.ParseTypedValue(kind, p.Value)
		if err != nil {
			return models.JobKey{}, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		params[i] = models.Param{Name: p.Name, Value: v}
	}
	return models.JobKey{
		Dataset:   r.Dataset,
		Candidate: r.Candidate,
		Config:    models.ConfigurationFromParams(params...),
	}, nil
}

func (r record) entry() (aggregator.Entry, error) {
	k, err := r.key()
	if err != nil {
		return aggregator.Entry{}, err
	}
	return aggregator.Entry{
		Key:         k,
		JobID:       r.JobID,
		Attempt:     r.Attempt,
		Scores:      r.Scores,
		Elapsed:     time.Duration(r.ElapsedUs) * time.Microsecond,
		CommittedAt: r.Committed,
	}, nil
}
