// Package candidate runs outlier detectors behind a uniform contract.
//
// An Adapter receives a fully resolved Configuration and the dataset rows
// and returns one score per row in row order. In-process detectors
// implement the Detector fit/score pair and are wrapped by a Harness;
// containerized detectors are driven by ContainerAdapter.
package candidate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime/debug"

	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Parameters every harness-driven candidate understands
const (
	ParamSeed         = "seed"
	ParamTrainsetSize = "trainset_size"
)

// Adapter executes one configuration against one data matrix.
// Failures wrap models.ErrCandidateExecution.
type Adapter interface {
	Run(ctx context.Context, cfg models.Configuration, rows [][]float64) (models.ScoreVector, error)
}

// AdapterFunc lets a plain function serve as an Adapter
type AdapterFunc func(ctx context.Context, cfg models.Configuration, rows [][]float64) (models.ScoreVector, error)

func (f AdapterFunc) Run(ctx context.Context, cfg models.Configuration, rows [][]float64) (models.ScoreVector, error) {
	return f(ctx, cfg, rows)
}

// Detector is the fit/score contract of an in-process detector
type Detector interface {
	Fit(train [][]float64) error
	Score(row []float64) (float64, error)
}

// Factory builds a detector for one configuration
type Factory func(cfg models.Configuration) (Detector, error)

// Harness adapts a Factory into an Adapter. It subsamples the training set
// using trainset_size (fraction of rows, default 1) and seed (default 0),
// fits the detector on the subsample and scores every row.
type Harness struct {
	name    string
	factory Factory
}

// NewHarness wraps factory
func NewHarness(name string, factory Factory) *Harness {
	return &Harness{name: name, factory: factory}
}

// Run implements Adapter
func (h *Harness) Run(ctx context.Context, cfg models.Configuration, rows [][]float64) (scores models.ScoreVector, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("candidate panicked", "candidate", h.name, "config", cfg.Key(), "panic", r, "stack", string(debug.Stack()))
			scores, err = nil, models.Errorf(models.ErrCandidateExecution, "%s panicked: %v", h.name, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	det, err := h.factory(cfg)
	if err != nil {
		return nil, h.fail(err)
	}
	train, err := Subsample(rows, cfg)
	if err != nil {
		return nil, h.fail(err)
	}
	if err := det.Fit(train); err != nil {
		return nil, h.fail(fmt.Errorf("fit: %w", err))
	}

	scores = make(models.ScoreVector, len(rows))
	for i, row := range rows {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		s, err := det.Score(row)
		if err != nil {
			return nil, h.fail(fmt.Errorf("score row %d: %w", i, err))
		}
		if math.IsNaN(s) {
			return nil, h.fail(fmt.Errorf("score row %d is NaN", i))
		}
		scores[i] = s
	}
	return scores, nil
}

func (h *Harness) fail(err error) error {
	return models.WrapError(models.ErrCandidateExecution, fmt.Errorf("%s: %w", h.name, err))
}

// Subsample draws the training rows without replacement. The draw depends
// only on the seed, the fraction and the row count.
func Subsample(rows [][]float64, cfg models.Configuration) ([][]float64, error) {
	frac := 1.0
	if v, ok := cfg.Get(ParamTrainsetSize); ok {
		f, err := v.AsFloat()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ParamTrainsetSize, err)
		}
		frac = f
	}
	if frac <= 0 || frac > 1 {
		return nil, fmt.Errorf("%s must be in (0, 1], got %g", ParamTrainsetSize, frac)
	}
	size := int(float64(len(rows)) * frac)
	if size == 0 {
		return nil, fmt.Errorf("%s %g selects no rows out of %d", ParamTrainsetSize, frac, len(rows))
	}
	if size == len(rows) {
		return rows, nil
	}

	rng, err := seededRand(cfg)
	if err != nil {
		return nil, err
	}
	perm := rng.Perm(len(rows))
	train := make([][]float64, size)
	for i := range train {
		train[i] = rows[perm[i]]
	}
	return train, nil
}

func seededRand(cfg models.Configuration) (*rand.Rand, error) {
	var seed int64
	if v, ok := cfg.Get(ParamSeed); ok {
		s, err := v.AsInt()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ParamSeed, err)
		}
		seed = s
	}
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)), nil
}
