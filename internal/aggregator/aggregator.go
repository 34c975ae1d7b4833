// Package aggregator collects score vectors into the suite's result table.
//
// One entry is kept per job key; the first accepted vector wins and later
// upserts are no-ops. Keys that never produced a vector are listed as
// missing together with the reason, so a partial run still yields a
// complete account of the score matrix.
package aggregator

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// Entry is one committed score vector
type Entry struct {
	Key         models.JobKey
	JobID       string
	Attempt     int
	Scores      models.ScoreVector
	Elapsed     time.Duration
	CommittedAt time.Time
}

// Missing records why a key has no entry
type Missing struct {
	Key    models.JobKey
	JobID  string
	Reason string
	Error  string
}

// Sink receives every committed entry and missing record, for example to
// checkpoint them. Sink errors are logged and do not fail the commit.
type Sink interface {
	PutEntry(e Entry) error
	PutMissing(m Missing) error
}

// Summary is the quality of one entry against the dataset ground truth.
// Metrics are nil when they are undefined for the dataset.
type Summary struct {
	Key              models.JobKey
	JobID            string
	Elapsed          time.Duration
	ROCAUC           *float64
	AveragePrecision *float64
	ROCCurve         []ROCPoint
}

// Snapshot is a consistent copy of the aggregator contents
type Snapshot struct {
	Entries []Entry
	Missing []Missing
}

type datasetInfo struct {
	rows   int
	labels []models.Label
}

// Aggregator is safe for concurrent use
type Aggregator struct {
	log   *slog.Logger
	sinks []Sink
	runID string

	mu       sync.Mutex
	datasets map[string]datasetInfo
	entries  map[string]*Entry
	missing  map[string]*Missing
}

// New creates an empty aggregator writing through to sinks
func New(sinks ...Sink) *Aggregator {
	return &Aggregator{
		log:      logger.Component("aggregator"),
		sinks:    sinks,
		datasets: make(map[string]datasetInfo),
		entries:  make(map[string]*Entry),
		missing:  make(map[string]*Missing),
	}
}

// WithRunID labels the artifacts written by a
func (a *Aggregator) WithRunID(id string) *Aggregator {
	a.runID = id
	return a
}

// AddDataset registers the row count and labels score vectors for ds are
// checked against
func (a *Aggregator) AddDataset(ds *dataset.Dataset) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.datasets[ds.ID] = datasetInfo{rows: ds.Len(), labels: ds.Labels}
}

// Upsert stores scores for key unless an entry already exists. It fails
// with models.ErrScoreShapeMismatch when the vector length differs from
// the dataset row count or a score is NaN.
func (a *Aggregator) Upsert(key models.JobKey, scores models.ScoreVector) (bool, error) {
	return a.upsert(Entry{Key: key, Scores: scores})
}

// Commit implements scheduler.Committer. Committing a key that already has
// an entry succeeds without replacing it.
func (a *Aggregator) Commit(job models.Job, scores models.ScoreVector) error {
	e := Entry{Key: job.Key(), JobID: job.ID, Attempt: job.Attempt, Scores: scores}
	if !job.StartedAt.IsZero() {
		e.Elapsed = time.Since(job.StartedAt)
	}
	_, err := a.upsert(e)
	return err
}

func (a *Aggregator) upsert(e Entry) (bool, error) {
	k := e.Key.String()

	a.mu.Lock()
	info, ok := a.datasets[e.Key.Dataset]
	if !ok {
		a.mu.Unlock()
		return false, models.Errorf(models.ErrDatasetLoad, "dataset %s is not registered", e.Key.Dataset)
	}
	if len(e.Scores) != info.rows {
		a.mu.Unlock()
		return false, models.Errorf(models.ErrScoreShapeMismatch, "%s: %d scores for %d rows", k, len(e.Scores), info.rows)
	}
	if utils.HasNaN(e.Scores) {
		a.mu.Unlock()
		return false, models.Errorf(models.ErrScoreShapeMismatch, "%s: NaN score", k)
	}
	if _, exists := a.entries[k]; exists {
		a.mu.Unlock()
		a.log.Debug("duplicate result ignored", "key", k, "job_id", e.JobID)
		return false, nil
	}
	e.Scores = append(models.ScoreVector(nil), e.Scores...)
	e.CommittedAt = time.Now()
	a.entries[k] = &e
	delete(a.missing, k)
	a.mu.Unlock()

	for _, s := range a.sinks {
		if err := s.PutEntry(e); err != nil {
			a.log.Warn("sink rejected entry", "key", k, "error", err)
		}
	}
	return true, nil
}

// RecordMissing notes that key produced no vector. It is a no-op when the
// key already has an entry.
func (a *Aggregator) RecordMissing(key models.JobKey, jobID string, err error) {
	k := key.String()
	m := Missing{Key: key, JobID: jobID, Reason: models.Reason(err)}
	if err != nil {
		m.Error = err.Error()
	}

	a.mu.Lock()
	if _, exists := a.entries[k]; exists {
		a.mu.Unlock()
		return
	}
	a.missing[k] = &m
	a.mu.Unlock()

	for _, s := range a.sinks {
		if err := s.PutMissing(m); err != nil {
			a.log.Warn("sink rejected missing record", "key", k, "error", err)
		}
	}
}

// Preload restores entries from an earlier run without validation or
// write-through
func (a *Aggregator) Preload(entries ...Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range entries {
		e := entries[i]
		k := e.Key.String()
		if _, exists := a.entries[k]; exists {
			continue
		}
		a.entries[k] = &e
		delete(a.missing, k)
	}
}

// Has reports whether key already has an entry
func (a *Aggregator) Has(key models.JobKey) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.entries[key.String()]
	return ok
}

// Len returns the number of entries and missing records
func (a *Aggregator) Len() (entries, missing int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries), len(a.missing)
}

// Snapshot returns entries and missing records ordered by key
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Entries: make([]Entry, 0, len(a.entries)),
		Missing: make([]Missing, 0, len(a.missing)),
	}
	for _, e := range a.entries {
		snap.Entries = append(snap.Entries, *e)
	}
	for _, m := range a.missing {
		snap.Missing = append(snap.Missing, *m)
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Key.String() < snap.Entries[j].Key.String() })
	sort.Slice(snap.Missing, func(i, j int) bool { return snap.Missing[i].Key.String() < snap.Missing[j].Key.String() })
	return snap
}

// Summaries scores every entry against its dataset labels, ordered by key
func (a *Aggregator) Summaries() []Summary {
	return a.summaries(a.Snapshot().Entries)
}

func (a *Aggregator) summaries(entries []Entry) []Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Summary, len(entries))
	for i, e := range entries {
		out[i] = a.summarize(e)
	}
	return out
}

// summarize computes metrics for e. Caller holds a.mu.
func (a *Aggregator) summarize(e Entry) Summary {
	s := Summary{Key: e.Key, JobID: e.JobID, Elapsed: e.Elapsed}
	labels := a.datasets[e.Key.Dataset].labels
	if labels == nil {
		return s
	}
	if v, ok := ROCAUC(labels, e.Scores); ok {
		s.ROCAUC = &v
	}
	if v, ok := AveragePrecision(labels, e.Scores); ok {
		s.AveragePrecision = &v
	}
	if curve, ok := ROCCurve(labels, e.Scores); ok {
		s.ROCCurve = curve
	}
	return s
}
