// Package scheduler drives benchmark jobs through a bounded pool of
// execution slots.
//
// Each job moves Pending → Running → {Succeeded, Failed} and produces
// exactly one terminal Event. Transient failures are resubmitted through
// the RetryPolicy; everything else is final. A successful result is
// handed to the Committer before the job is marked Succeeded.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

var (
	ErrDuplicateJob   = errors.New("job already submitted")
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrStopped        = errors.New("scheduler stopped")
)

// Executor runs one attempt of a job. It is called from a slot goroutine
// and blocks until the attempt finishes or ctx is cancelled.
type Executor interface {
	Execute(ctx context.Context, job models.Job) (models.ScoreVector, error)
}

// ExecutorFunc lets a plain function serve as an Executor
type ExecutorFunc func(ctx context.Context, job models.Job) (models.ScoreVector, error)

func (f ExecutorFunc) Execute(ctx context.Context, job models.Job) (models.ScoreVector, error) {
	return f(ctx, job)
}

// Committer stores a successful result. A commit error fails the job
// permanently.
type Committer interface {
	Commit(job models.Job, scores models.ScoreVector) error
}

// Event reports a job reaching its terminal state
type Event struct {
	Job models.Job
}

// Summary describes a drained run
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Retries   int           `json:"retries"`
	Cancelled int           `json:"cancelled"`
	Abandoned int           `json:"abandoned"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Counts is the number of jobs per state
type Counts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Options configures a Scheduler
type Options struct {
	// Slots bounds concurrent executions. Zero means one slot.
	Slots int
	// Retry defaults to two retries without backoff
	Retry *RetryPolicy
	// GracePeriod is how long in-flight jobs may finish after the run is
	// cancelled before they are abandoned
	GracePeriod time.Duration
	Committer   Committer
}

// Scheduler owns the job table, the pending queue and the slots
type Scheduler struct {
	exec  Executor
	opts  Options
	retry *RetryPolicy
	log   *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   jobQueue
	jobs    map[string]*entry
	keys    map[string]string // job key → job id
	order   []*entry
	groups  map[string]int
	seq     uint64
	events  []Event
	summary Summary

	terminal      int
	drained       chan struct{}
	drainedClosed bool

	started   bool
	cancelled bool
	closing   bool
	startedAt time.Time

	execCtx    context.Context
	execCancel context.CancelFunc
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// New creates a scheduler over exec
func New(exec Executor, opts Options) *Scheduler {
	if opts.Slots <= 0 {
		opts.Slots = 1
	}
	retry := opts.Retry
	if retry == nil {
		retry = NewRetryPolicy(2, nil)
	}
	execCtx, execCancel := context.WithCancel(context.Background())
	s := &Scheduler{
		exec:          exec,
		opts:          opts,
		retry:         retry,
		log:           logger.Component("scheduler"),
		jobs:          make(map[string]*entry),
		keys:          make(map[string]string),
		groups:        make(map[string]int),
		drained:       make(chan struct{}),
		drainedClosed: true,
		execCtx:       execCtx,
		execCancel:    execCancel,
		stopCh:        make(chan struct{}),
	}
	close(s.drained)
	s.cond = sync.NewCond(&s.mu)
	return s
}

// NewJob builds a pending job for one cell of the score matrix
func NewJob(ds models.DatasetRef, cand models.CandidateSpec, cfg models.Configuration) models.Job {
	return models.Job{
		ID:        utils.GenerateJobID(),
		Dataset:   ds,
		Candidate: cand,
		Config:    cfg,
		State:     models.JobPending,
	}
}

// Start launches the slots. Cancelling ctx cancels the run: pending jobs
// fail with models.ErrRunCancelled and in-flight jobs are abandoned after
// the grace period.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.closing {
		s.mu.Unlock()
		return ErrStopped
	}
	s.started = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	for i := 0; i < s.opts.Slots; i++ {
		s.wg.Add(1)
		go s.slot(i)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.cancelRun()
		case <-s.stopCh:
		}
	}()
	s.log.Info("scheduler started", "slots", s.opts.Slots, "max_retries", s.retry.MaxRetries())
	return nil
}

// Submit enqueues a job and returns its ID. Each job key may be submitted
// once per scheduler.
func (s *Scheduler) Submit(job models.Job) (string, error) {
	if job.ID == "" {
		job.ID = utils.GenerateJobID()
	}
	key := job.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return "", fmt.Errorf("submit %s: %w", key, models.ErrRunCancelled)
	}
	if s.closing {
		return "", ErrStopped
	}
	if _, ok := s.jobs[job.ID]; ok {
		return "", fmt.Errorf("%w: id %s", ErrDuplicateJob, job.ID)
	}
	if id, ok := s.keys[key.String()]; ok {
		return "", fmt.Errorf("%w: %s (job %s)", ErrDuplicateJob, key, id)
	}

	group, ok := s.groups[key.Group()]
	if !ok {
		group = len(s.groups)
		s.groups[key.Group()] = group
	}

	job.State = models.JobPending
	job.Attempt = 0
	job.Err = nil
	job.SubmittedAt = time.Now()
	s.seq++
	e := &entry{job: job, group: group, seq: s.seq, index: -1}
	s.jobs[job.ID] = e
	s.keys[key.String()] = job.ID
	s.order = append(s.order, e)
	s.summary.Total++

	if s.drainedClosed {
		s.drained = make(chan struct{})
		s.drainedClosed = false
	}

	heap.Push(&s.queue, e)
	s.cond.Signal()
	return job.ID, nil
}

func (s *Scheduler) slot(id int) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.closing {
			s.cond.Wait()
		}
		if s.closing {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.queue).(*entry)
		e.job.Attempt++
		e.job.State = models.JobRunning
		e.job.StartedAt = time.Now()
		e.gen++
		gen := e.gen
		job := e.job
		s.mu.Unlock()

		s.log.Debug("job dispatched", "slot", id, "job_id", job.ID, "key", job.Key().String(), "attempt", job.Attempt)
		scores, err := s.exec.Execute(s.execCtx, job)
		s.complete(e, gen, scores, err)
	}
}

func (s *Scheduler) complete(e *entry, gen int, scores models.ScoreVector, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.job.State != models.JobRunning || e.gen != gen {
		s.log.Info("late result discarded", "job_id", e.job.ID, "state", e.job.State.String(), "error", err)
		return
	}

	if err == nil && s.opts.Committer != nil {
		e.committing = true
		job := e.job
		s.mu.Unlock()
		err = s.opts.Committer.Commit(job, scores)
		s.mu.Lock()
		e.committing = false
	}

	if err == nil {
		s.finish(e, models.JobSucceeded, nil)
		return
	}

	if !s.cancelled && s.retry.ShouldRetry(e.job.Attempt, err) {
		delay := s.retry.Delay(e.job.Attempt)
		e.job.State = models.JobPending
		e.job.Err = err
		s.summary.Retries++
		s.log.Warn("job retry scheduled", "job_id", e.job.ID, "attempt", e.job.Attempt, "delay", delay, "error", err)
		time.AfterFunc(delay, func() { s.requeue(e) })
		return
	}
	s.finish(e, models.JobFailed, err)
}

func (s *Scheduler) requeue(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.job.State != models.JobPending || e.index >= 0 || s.closing {
		return
	}
	heap.Push(&s.queue, e)
	s.cond.Signal()
}

// finish records the terminal state. Caller holds s.mu.
func (s *Scheduler) finish(e *entry, state models.JobState, err error) {
	e.job.State = state
	e.job.Err = err
	e.job.EndedAt = time.Now()
	s.terminal++

	switch {
	case state == models.JobSucceeded:
		s.summary.Succeeded++
		s.log.Debug("job succeeded", "job_id", e.job.ID, "key", e.job.Key().String(), "attempt", e.job.Attempt, "elapsed", e.job.Elapsed())
	default:
		s.summary.Failed++
		switch {
		case errors.Is(err, models.ErrRunCancelled):
			s.summary.Cancelled++
		case errors.Is(err, models.ErrJobAbandoned):
			s.summary.Abandoned++
		}
		s.log.Warn("job failed", "job_id", e.job.ID, "key", e.job.Key().String(), "attempt", e.job.Attempt, "reason", models.Reason(err), "error", err)
	}

	s.events = append(s.events, Event{Job: e.job})
	if s.terminal == len(s.jobs) && !s.drainedClosed {
		close(s.drained)
		s.drainedClosed = true
	}
}

// cancelRun stops dispatch and fails every pending job
func (s *Scheduler) cancelRun() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true

	for s.queue.Len() > 0 {
		heap.Pop(&s.queue)
	}
	cancelled, running := 0, 0
	for _, e := range s.order {
		switch e.job.State {
		case models.JobPending:
			s.finish(e, models.JobFailed, models.Errorf(models.ErrRunCancelled, "job %s never started", e.job.ID))
			cancelled++
		case models.JobRunning:
			running++
		}
	}
	s.mu.Unlock()

	if cancelled+running > 0 {
		s.log.Warn("run cancelled", "cancelled_jobs", cancelled, "in_flight", running, "grace_period", s.opts.GracePeriod)
	}
	if running > 0 {
		time.AfterFunc(s.opts.GracePeriod, s.abandon)
	}
}

// abandon fails the jobs still running after the grace period and cancels
// their executions. Jobs already committing are left to finish.
func (s *Scheduler) abandon() {
	s.mu.Lock()
	n := 0
	for _, e := range s.order {
		if e.job.State == models.JobRunning && !e.committing {
			s.finish(e, models.JobFailed, models.Errorf(models.ErrJobAbandoned, "job %s still running after grace period", e.job.ID))
			n++
		}
	}
	s.mu.Unlock()

	s.execCancel()
	if n > 0 {
		s.log.Warn("in-flight jobs abandoned", "count", n)
	}
}

// Poll returns the next terminal event, if any
func (s *Scheduler) Poll() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	ev := s.events[0]
	s.events[0] = Event{}
	s.events = s.events[1:]
	return ev, true
}

// Drain blocks until every submitted job is terminal or ctx is done
func (s *Scheduler) Drain(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	drained := s.drained
	s.mu.Unlock()

	select {
	case <-drained:
	case <-ctx.Done():
		return s.Summary(), ctx.Err()
	}
	return s.Summary(), nil
}

// Summary returns the counters so far
func (s *Scheduler) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := s.summary
	if !s.startedAt.IsZero() {
		sum.Elapsed = time.Since(s.startedAt)
	}
	return sum
}

// Snapshot returns every job in submission order
func (s *Scheduler) Snapshot() []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, len(s.order))
	for i, e := range s.order {
		out[i] = e.job
	}
	return out
}

// Job returns one job by ID
func (s *Scheduler) Job(id string) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return e.job, true
}

// Counts returns the number of jobs per state
func (s *Scheduler) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Counts
	for _, e := range s.order {
		switch e.job.State {
		case models.JobPending:
			c.Pending++
		case models.JobRunning:
			c.Running++
		case models.JobSucceeded:
			c.Succeeded++
		case models.JobFailed:
			c.Failed++
		}
	}
	return c
}

// Stop cancels the run without a grace period and waits for the slots to
// exit. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.cancelRun()
	s.abandon()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	close(s.stopCh)
	s.mu.Unlock()

	s.cond.Broadcast()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}
