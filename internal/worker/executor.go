// Package worker executes benchmark jobs, either inside the master process
// or as a remote agent registered with the master.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/candidate"
	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Executor runs one job attempt: load the dataset, build the candidate
// adapter and score every row. It implements scheduler.Executor.
type Executor struct {
	datasets dataset.Provider
	catalog  *dataset.FileProvider
	registry *candidate.Registry
	log      *slog.Logger
}

// NewExecutor creates an executor over a dataset provider and a candidate
// registry
func NewExecutor(datasets dataset.Provider, registry *candidate.Registry) *Executor {
	return &Executor{datasets: datasets, registry: registry, log: logger.Component("executor")}
}

// WithCatalog registers the dataset reference of every job with fp before
// loading, so that paths sent by the master resolve under fp's root
func (e *Executor) WithCatalog(fp *dataset.FileProvider) *Executor {
	e.catalog = fp
	return e
}

// Execute implements scheduler.Executor
func (e *Executor) Execute(ctx context.Context, job models.Job) (models.ScoreVector, error) {
	start := time.Now()
	if e.catalog != nil {
		e.catalog.Add(job.Dataset)
	}

	ds, err := e.datasets.Load(ctx, job.Dataset.Name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, models.ErrDatasetLoad) {
			err = models.WrapError(models.ErrDatasetLoad, err)
		}
		return nil, err
	}

	required, err := e.registry.Required(job.Candidate)
	if err != nil {
		return nil, err
	}
	if missing := job.Config.Missing(required); len(missing) > 0 {
		return nil, models.Errorf(models.ErrInvalidParameterSpec, "configuration %s of %s lacks %v", job.Config, job.Candidate.Name, missing)
	}

	adapter, err := e.registry.Build(job.Candidate)
	if err != nil {
		return nil, err
	}
	scores, err := adapter.Run(ctx, job.Config, ds.Rows)
	if err != nil {
		return nil, err
	}
	if len(scores) != ds.Len() {
		return nil, models.Errorf(models.ErrScoreShapeMismatch, "%s returned %d scores for %d rows of %s", job.Candidate.Name, len(scores), ds.Len(), ds.ID)
	}

	e.log.Debug("job executed", "job_id", job.ID, "dataset", ds.ID, "candidate", job.Candidate.Name, "config", job.Config.Key(), "rows", ds.Len(), "elapsed", time.Since(start))
	return scores, nil
}
