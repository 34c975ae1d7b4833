// Package suite runs one benchmark: it plans the dataset × candidate ×
// configuration matrix, drives it through the scheduler and writes the
// score matrix artifacts.
package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/aggregator"
	"github.com/GoSim-25-26J-441/bench-core/internal/candidate"
	"github.com/GoSim-25-26J-441/bench-core/internal/checkpoint"
	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/internal/metrics"
	"github.com/GoSim-25-26J-441/bench-core/internal/paramspace"
	"github.com/GoSim-25-26J-441/bench-core/internal/scheduler"
	"github.com/GoSim-25-26J-441/bench-core/pkg/config"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

var ErrAlreadyRun = errors.New("suite already run")

// How often terminal job events are folded into the matrix while jobs run
const eventInterval = 200 * time.Millisecond

// Phase is the lifecycle stage of a suite run
type Phase string

const (
	PhaseCreated  Phase = "created"
	PhasePlanning Phase = "planning"
	PhaseRunning  Phase = "running"
	PhaseWriting  Phase = "writing"
	PhaseDone     Phase = "done"
	PhaseFailed   Phase = "failed"
)

// Deps are the collaborators a Runner drives
type Deps struct {
	// Datasets is consulted by the master for row counts and labels
	Datasets dataset.Provider
	Registry *candidate.Registry
	// Executor runs job attempts: a local worker.Executor or the
	// distributed coordinator
	Executor scheduler.Executor
	// Store is optional; committed entries and missing records are
	// written through to it
	Store checkpoint.Store
}

// CandidatePlan is the expanded parameter space of one candidate
type CandidatePlan struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Params  []string `json:"params"`
	Configs int      `json:"configs"`
	Error   string   `json:"error,omitempty"`
}

// Result summarizes a finished run
type Result struct {
	RunID    string            `json:"run_id"`
	Summary  scheduler.Summary `json:"summary"`
	Entries  int               `json:"entries"`
	Missing  int               `json:"missing"`
	Resumed  int               `json:"resumed"`
	Artifact string            `json:"artifact,omitempty"`
}

// Status is a point-in-time view of a run
type Status struct {
	RunID      string                     `json:"run_id"`
	Mode       string                     `json:"mode"`
	Phase      Phase                      `json:"phase"`
	Error      string                     `json:"error,omitempty"`
	Datasets   []string                   `json:"datasets"`
	Candidates []CandidatePlan            `json:"candidates"`
	Counts     scheduler.Counts           `json:"counts"`
	Metrics    []metrics.CandidateMetrics `json:"metrics"`
	Resumed    int                        `json:"resumed"`
	Entries    int                        `json:"entries"`
	Missing    int                        `json:"missing"`
	StartedAt  time.Time                  `json:"started_at,omitempty"`
	EndedAt    time.Time                  `json:"ended_at,omitempty"`
}

// Runner owns one run. It is used once.
type Runner struct {
	cfg   *config.Config
	deps  Deps
	runID string
	agg   *aggregator.Aggregator
	sched *scheduler.Scheduler
	stats *metrics.Collector
	log   *slog.Logger

	mu        sync.RWMutex
	phase     Phase
	err       error
	datasets  []string
	plans     []CandidatePlan
	resumed   int
	startedAt time.Time
	endedAt   time.Time
}

// New creates a runner for cfg. The run ID comes from the config or is
// generated.
func New(cfg *config.Config, deps Deps) (*Runner, error) {
	if deps.Datasets == nil || deps.Registry == nil || deps.Executor == nil {
		return nil, errors.New("suite: datasets, registry and executor are required")
	}
	grace, err := cfg.Execution.GetGracePeriod()
	if err != nil {
		return nil, fmt.Errorf("grace period: %w", err)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = utils.GenerateRunID()
	}
	var sinks []aggregator.Sink
	if deps.Store != nil {
		sinks = append(sinks, deps.Store)
	}
	agg := aggregator.New(sinks...).WithRunID(runID)
	sched := scheduler.New(deps.Executor, scheduler.Options{
		Slots:       cfg.Execution.Slots,
		Retry:       scheduler.NewRetryPolicyFromConfig(&cfg.Execution),
		GracePeriod: grace,
		Committer:   agg,
	})

	return &Runner{
		cfg:   cfg,
		deps:  deps,
		runID: runID,
		agg:   agg,
		sched: sched,
		stats: metrics.NewCollector(),
		log:   logger.Component("suite").With("run_id", runID),
		phase: PhaseCreated,
	}, nil
}

// RunID returns the run identifier
func (r *Runner) RunID() string { return r.runID }

// Aggregator exposes the score matrix of the run
func (r *Runner) Aggregator() *aggregator.Aggregator { return r.agg }

// Jobs returns every submitted job in submission order
func (r *Runner) Jobs() []models.Job { return r.sched.Snapshot() }

// Run executes the suite. Failures of single datasets, candidates or jobs
// are recorded as missing entries; only setup failures such as an
// unreadable checkpoint or an unwritable artifact are returned. Cancelling
// ctx fails pending jobs, gives in-flight jobs the grace period and still
// writes the artifacts.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.phase != PhaseCreated {
		r.mu.Unlock()
		return Result{}, ErrAlreadyRun
	}
	r.phase = PhasePlanning
	r.startedAt = time.Now()
	r.mu.Unlock()

	res, err := r.run(ctx)

	r.mu.Lock()
	r.endedAt = time.Now()
	if err != nil {
		r.phase = PhaseFailed
		r.err = err
	} else {
		r.phase = PhaseDone
	}
	r.mu.Unlock()
	return res, err
}

func (r *Runner) run(ctx context.Context) (Result, error) {
	defer r.sched.Stop()
	res := Result{RunID: r.runID}

	plans, badCandidates := r.planCandidates()
	loaded, badDatasets := r.loadDatasets(ctx)

	if r.deps.Store != nil && r.cfg.Checkpoint != nil && r.cfg.Checkpoint.Resume {
		entries, err := r.deps.Store.Load(ctx)
		if err != nil {
			return res, fmt.Errorf("load checkpoint: %w", err)
		}
		r.agg.Preload(entries...)
		r.log.Info("checkpoint loaded", "entries", len(entries))
	}

	// Cells that cannot run still belong in the artifact
	for _, ref := range loaded {
		for _, bad := range badCandidates {
			key := models.JobKey{Dataset: ref.Name, Candidate: bad.spec.Name}
			r.agg.RecordMissing(key, "", bad.err)
		}
	}
	for _, bad := range badDatasets {
		for _, p := range plans {
			for _, cfg := range p.Configs {
				r.agg.RecordMissing(models.JobKey{Dataset: bad.ref.Name, Candidate: p.Candidate.Name, Config: cfg}, "", bad.err)
			}
		}
	}

	r.setPhase(PhaseRunning)
	if err := r.sched.Start(ctx); err != nil {
		return res, err
	}
	for _, job := range scheduler.BuildJobs(loaded, plans) {
		if r.agg.Has(job.Key()) {
			res.Resumed++
			continue
		}
		if _, err := r.sched.Submit(job); err != nil {
			r.agg.RecordMissing(job.Key(), job.ID, err)
		}
	}
	r.mu.Lock()
	r.resumed = res.Resumed
	r.mu.Unlock()
	r.log.Info("jobs submitted", "datasets", len(loaded), "candidates", len(plans), "jobs", r.sched.Summary().Total, "resumed", res.Resumed)

	// Cancellation is bounded by the grace period, so the drain always
	// terminates.
	drained := make(chan scheduler.Summary, 1)
	go func() {
		sum, _ := r.sched.Drain(context.Background())
		drained <- sum
	}()
	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()
	var sum scheduler.Summary
wait:
	for {
		select {
		case sum = <-drained:
			break wait
		case <-ticker.C:
			r.consumeEvents()
		}
	}
	r.consumeEvents()
	res.Summary = sum
	res.Entries, res.Missing = r.agg.Len()

	r.setPhase(PhaseWriting)
	if err := r.writeArtifacts(); err != nil {
		return res, err
	}
	res.Artifact = r.cfg.Output.Path

	r.log.Info("suite finished",
		"entries", res.Entries,
		"missing", res.Missing,
		"retries", sum.Retries,
		"cancelled", sum.Cancelled,
		"abandoned", sum.Abandoned,
		"elapsed", sum.Elapsed,
	)
	for _, m := range metrics.CandidateSummary(r.stats) {
		r.log.Info("candidate profile", "candidate", m.Candidate, "jobs", m.Jobs, "failed", m.Failed, "retries", m.Retries, "p50_ms", m.DurationP50, "p95_ms", m.DurationP95)
	}
	return res, nil
}

// consumeEvents records every terminal job seen since the last call
func (r *Runner) consumeEvents() {
	for {
		ev, ok := r.sched.Poll()
		if !ok {
			return
		}
		metrics.RecordJob(r.stats, ev.Job)
		if ev.Job.State == models.JobFailed {
			r.agg.RecordMissing(ev.Job.Key(), ev.Job.ID, ev.Job.Err)
		}
	}
}

type failedCandidate struct {
	spec models.CandidateSpec
	err  error
}

// planCandidates resolves and expands every candidate's parameters. A
// candidate whose declaration is unusable contributes no jobs.
func (r *Runner) planCandidates() ([]scheduler.Plan, []failedCandidate) {
	var plans []scheduler.Plan
	var failed []failedCandidate
	var views []CandidatePlan

	for _, c := range r.cfg.Candidates {
		spec := c.Spec()
		view := CandidatePlan{Name: spec.Name, Kind: spec.Kind}

		configs, names, err := r.expand(c, spec)
		if err != nil {
			r.log.Error("candidate skipped", "candidate", spec.Name, "reason", models.Reason(err), "error", err)
			failed = append(failed, failedCandidate{spec: spec, err: err})
			view.Error = err.Error()
			views = append(views, view)
			continue
		}
		view.Params = names
		view.Configs = len(configs)
		views = append(views, view)
		plans = append(plans, scheduler.Plan{Candidate: spec, Configs: configs})
		r.log.Debug("candidate planned", "candidate", spec.Name, "kind", spec.Kind, "configs", len(configs))
	}

	r.mu.Lock()
	r.plans = views
	r.mu.Unlock()
	return plans, failed
}

func (r *Runner) expand(c config.Candidate, spec models.CandidateSpec) ([]models.Configuration, []string, error) {
	params, err := c.ResolveParameters()
	if err != nil {
		if !errors.Is(err, models.ErrInvalidParameterSpec) {
			err = models.WrapError(models.ErrInvalidParameterSpec, err)
		}
		return nil, nil, err
	}
	if err := r.deps.Registry.CheckRequired(spec, params.Names()); err != nil {
		return nil, nil, err
	}
	space, err := paramspace.Expand(params)
	if err != nil {
		return nil, nil, err
	}
	return space.Configurations(), space.Names(), nil
}

type failedDataset struct {
	ref models.DatasetRef
	err error
}

// loadDatasets registers every loadable dataset with the aggregator
func (r *Runner) loadDatasets(ctx context.Context) ([]models.DatasetRef, []failedDataset) {
	var loaded []models.DatasetRef
	var failed []failedDataset
	var names []string

	for _, ref := range r.cfg.Datasets {
		names = append(names, ref.Name)
		ds, err := r.deps.Datasets.Load(ctx, ref.Name)
		if err != nil {
			if !errors.Is(err, models.ErrDatasetLoad) {
				err = models.WrapError(models.ErrDatasetLoad, err)
			}
			r.log.Error("dataset skipped", "dataset", ref.Name, "error", err)
			failed = append(failed, failedDataset{ref: ref, err: err})
			continue
		}
		r.agg.AddDataset(ds)
		loaded = append(loaded, ref)
		r.log.Debug("dataset loaded", "dataset", ds.ID, "rows", ds.Len(), "dim", ds.Dim(), "labeled", ds.Labeled(), "outliers", ds.Outliers())
	}

	r.mu.Lock()
	r.datasets = names
	r.mu.Unlock()
	return loaded, failed
}

func (r *Runner) writeArtifacts() error {
	if path := r.cfg.Output.Path; path != "" {
		if err := r.agg.WriteJSON(path); err != nil {
			return fmt.Errorf("write score matrix: %w", err)
		}
		r.log.Info("score matrix written", "path", path)
	}
	if path := r.cfg.Output.CSVPath; path != "" {
		if err := r.agg.WriteCSV(path); err != nil {
			return fmt.Errorf("write csv digest: %w", err)
		}
		r.log.Info("csv digest written", "path", path)
	}
	return nil
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

// Status returns the current view of the run
func (r *Runner) Status() Status {
	r.mu.RLock()
	st := Status{
		RunID:      r.runID,
		Mode:       r.cfg.Execution.ResolvedMode(),
		Phase:      r.phase,
		Datasets:   append([]string(nil), r.datasets...),
		Candidates: append([]CandidatePlan(nil), r.plans...),
		Resumed:    r.resumed,
		StartedAt:  r.startedAt,
		EndedAt:    r.endedAt,
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	r.mu.RUnlock()

	st.Counts = r.sched.Counts()
	st.Metrics = metrics.CandidateSummary(r.stats)
	st.Entries, st.Missing = r.agg.Len()
	return st
}
