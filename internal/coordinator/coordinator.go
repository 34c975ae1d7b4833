// Package coordinator hands scheduler jobs to remote workers.
//
// The coordinator is the only writer of assignment state. Each scheduler
// slot calling Execute parks one waiter; an idle worker asking for work
// receives the oldest parked waiter. A waiter settles exactly once, from
// the first report for its job, a heartbeat timeout, or a disconnect.
// Retries stay with the scheduler.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/protocol"
	"github.com/GoSim-25-26J-441/bench-core/internal/transport"
	"github.com/GoSim-25-26J-441/bench-core/pkg/config"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// Options configures a Coordinator
type Options struct {
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is how long a worker may stay silent. An assigned
	// worker past it times out; any other worker is removed.
	HeartbeatTimeout time.Duration
	// QuarantineAfter consecutive dataset load failures keep a worker
	// name out of assignment for QuarantineFor. Zero disables quarantine.
	QuarantineAfter int
	QuarantineFor   time.Duration
	// RemovedRetention is how long a removed worker stays listed by
	// Workers. Defaults to twice HeartbeatTimeout.
	RemovedRetention time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// OptionsFromConfig reads the heartbeat and quarantine settings of a
// validated execution block. Unparseable durations fall back to the
// defaults of New.
func OptionsFromConfig(e *config.Execution) Options {
	interval, _ := e.GetHeartbeatInterval()
	timeout, _ := e.GetHeartbeatTimeout()
	cooldown, _ := e.GetQuarantineFor()
	return Options{
		HeartbeatInterval: interval,
		HeartbeatTimeout:  timeout,
		QuarantineAfter:   e.QuarantineAfter,
		QuarantineFor:     cooldown,
	}
}

type result struct {
	scores models.ScoreVector
	err    error
}

// waiter is one Execute call waiting for a worker result
type waiter struct {
	job     models.Job
	worker  string // assigned worker ID, empty while queued
	done    chan result
	settled bool
}

// Coordinator tracks workers and their assignments
type Coordinator struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	workers  map[string]*WorkerHandle
	order    []*WorkerHandle
	queue    []*waiter
	awaiting map[string]*waiter // job ID → waiter, queued or assigned
	breaker  *breaker
}

// New creates a coordinator
func New(opts Options) *Coordinator {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 5 * opts.HeartbeatInterval
	}
	if opts.RemovedRetention <= 0 {
		opts.RemovedRetention = 2 * opts.HeartbeatTimeout
	}
	if opts.QuarantineFor <= 0 {
		opts.QuarantineFor = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		opts:     opts,
		log:      logger.Component("coordinator"),
		workers:  make(map[string]*WorkerHandle),
		awaiting: make(map[string]*waiter),
		breaker:  newBreaker(opts.QuarantineAfter, opts.QuarantineFor),
	}
}

// Execute parks job until a worker reports on it. It implements
// scheduler.Executor.
func (c *Coordinator) Execute(ctx context.Context, job models.Job) (models.ScoreVector, error) {
	w := &waiter{job: job, done: make(chan result, 1)}

	c.mu.Lock()
	if prev, ok := c.awaiting[job.ID]; ok && !prev.settled {
		c.mu.Unlock()
		return nil, fmt.Errorf("job %s is already awaiting a result", job.ID)
	}
	c.awaiting[job.ID] = w
	c.queue = append(c.queue, w)
	c.mu.Unlock()

	select {
	case r := <-w.done:
		return r.scores, r.err
	case <-ctx.Done():
		c.mu.Lock()
		if !w.settled {
			w.settled = true
			c.dropLocked(w)
		}
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Handle answers one worker request. It implements transport.Handler.
func (c *Coordinator) Handle(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	switch m := msg.(type) {
	case protocol.Register:
		return c.register(transport.PeerAddr(ctx), m), nil
	case protocol.Heartbeat:
		return c.heartbeat(m), nil
	case protocol.Report:
		return c.report(m), nil
	case protocol.RegisterAck, protocol.Assign, protocol.Idle, protocol.ReportAck, protocol.Reject:
		return nil, fmt.Errorf("%w: %s is not a worker request", protocol.ErrMalformed, m.Type())
	default:
		return nil, fmt.Errorf("%w: unexpected message %T", protocol.ErrMalformed, msg)
	}
}

func (c *Coordinator) register(addr string, m protocol.Register) protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.opts.Now()

	// A re-registration under the same name means the old session is gone
	for _, h := range c.order {
		if h.Name == m.Name && h.State != WorkerRemoved {
			c.removeLocked(h, models.Errorf(models.ErrWorkerDisconnected, "worker %s re-registered", h.ID))
		}
	}

	h := &WorkerHandle{
		ID:       utils.GenerateWorkerID(m.Name),
		Name:     m.Name,
		Version:  m.Version,
		Addr:     addr,
		State:    WorkerRegistering,
		LastSeen: now,
	}
	c.workers[h.ID] = h
	c.order = append(c.order, h)
	c.log.Info("worker registered", "worker_id", h.ID, "name", h.Name, "addr", addr, "version", m.Version)
	return protocol.RegisterAck{WorkerID: h.ID, HeartbeatInterval: c.opts.HeartbeatInterval}
}

func (c *Coordinator) heartbeat(m protocol.Heartbeat) protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.workers[m.WorkerID]
	if !ok || h.State == WorkerRemoved {
		return protocol.Reject{Reason: fmt.Sprintf("unknown worker %q", m.WorkerID)}
	}
	h.LastSeen = c.opts.Now()

	switch h.State {
	case WorkerAssigned:
		if m.JobID == h.Current.ID {
			return protocol.Idle{}
		}
		// The worker no longer runs the job it was given
		c.releaseLocked(h, models.Errorf(models.ErrWorkerDisconnected, "worker %s dropped job %s", h.ID, h.Current.ID))
		h.State = WorkerIdle
	case WorkerTimedOut:
		c.log.Info("timed out worker is back", "worker_id", h.ID, "job_id", m.JobID)
		h.State = WorkerIdle
	case WorkerRegistering, WorkerReporting:
		h.State = WorkerIdle
	}

	if m.JobID != "" {
		// Still busy with a job the master gave up on; its report may
		// still be accepted.
		return protocol.Idle{}
	}
	return c.assignLocked(h)
}

// assignLocked hands the oldest queued waiter to an idle worker that is
// not quarantined
func (c *Coordinator) assignLocked(h *WorkerHandle) protocol.Message {
	if !c.breaker.allow(h.Name, c.opts.Now()) {
		return protocol.Idle{}
	}
	for len(c.queue) > 0 {
		w := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		if w.settled {
			continue
		}
		w.worker = h.ID
		job := w.job
		h.State = WorkerAssigned
		h.Current = &job
		c.log.Debug("job assigned", "worker_id", h.ID, "job_id", job.ID, "attempt", job.Attempt)
		return protocol.AssignFor(job)
	}
	return protocol.Idle{}
}

// report settles the job's waiter if it is still awaiting a result. A
// report from a removed worker is still accepted; the worker learns it
// must register again from its next heartbeat.
func (c *Coordinator) report(m protocol.Report) protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, known := c.workers[m.WorkerID]
	if known {
		h.LastSeen = c.opts.Now()
		if h.Current != nil && h.Current.ID == m.JobID {
			h.Current = nil
			h.State = WorkerReporting
		}
	}

	w, ok := c.awaiting[m.JobID]
	if !ok || w.settled {
		c.log.Info("duplicate report discarded", "worker_id", m.WorkerID, "job_id", m.JobID, "attempt", m.Attempt)
		return protocol.ReportAck{Accepted: false}
	}

	// First report wins, even from a worker other than the assignee
	if w.worker != "" && w.worker != m.WorkerID {
		if other, ok := c.workers[w.worker]; ok && other.Current != nil && other.Current.ID == m.JobID {
			other.Current = nil
			other.State = WorkerIdle
		}
	}
	if known {
		h.Completed++
		c.observeLocked(h, m.Err())
	}
	c.settleLocked(w, result{scores: m.Scores, err: m.Err()})
	c.log.Debug("report accepted", "worker_id", m.WorkerID, "job_id", m.JobID, "attempt", m.Attempt, "failed", m.Failed())
	return protocol.ReportAck{Accepted: true}
}

// Sweep applies heartbeat deadlines at the current time
func (c *Coordinator) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.opts.Now()

	for _, h := range c.order {
		silent := now.Sub(h.LastSeen)
		switch h.State {
		case WorkerAssigned:
			if silent > c.opts.HeartbeatTimeout {
				c.log.Warn("worker timed out", "worker_id", h.ID, "job_id", h.Current.ID, "silent", silent)
				c.releaseLocked(h, models.Errorf(models.ErrWorkerTimeout, "worker %s silent for %s", h.ID, silent.Round(time.Millisecond)))
				h.State = WorkerTimedOut
			}
		case WorkerTimedOut:
			if silent > 2*c.opts.HeartbeatTimeout {
				c.removeLocked(h, nil)
			}
		case WorkerRegistering, WorkerIdle, WorkerReporting:
			if silent > c.opts.HeartbeatTimeout {
				c.removeLocked(h, nil)
			}
		}
	}
	c.pruneLocked(now)
}

// pruneLocked forgets workers removed longer than RemovedRetention ago
func (c *Coordinator) pruneLocked(now time.Time) {
	kept := c.order[:0]
	for _, h := range c.order {
		if h.State == WorkerRemoved && now.Sub(h.RemovedAt) > c.opts.RemovedRetention {
			continue
		}
		kept = append(kept, h)
	}
	for i := len(kept); i < len(c.order); i++ {
		c.order[i] = nil
	}
	c.order = kept
}

// observeLocked feeds an accepted report into the quarantine breaker. Only
// dataset load failures count; they point at the worker's data root rather
// than at the candidate.
func (c *Coordinator) observeLocked(h *WorkerHandle, err error) {
	now := c.opts.Now()
	switch {
	case err == nil:
		c.breaker.success(h.Name, now)
	case errors.Is(err, models.ErrDatasetLoad):
		if c.breaker.failure(h.Name, now) {
			c.log.Warn("worker quarantined", "worker_id", h.ID, "name", h.Name, "cooldown", c.opts.QuarantineFor)
		}
	}
}

// Run sweeps at the heartbeat interval until ctx is done
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Workers returns a copy of every worker, in registration order
func (c *Coordinator) Workers() []WorkerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.opts.Now()
	out := make([]WorkerHandle, len(c.order))
	for i, h := range c.order {
		out[i] = h.clone()
		out[i].Quarantine = c.breaker.state(h.Name, now)
	}
	return out
}

// Live returns the number of workers that are not removed
func (c *Coordinator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, h := range c.order {
		if h.State != WorkerRemoved {
			n++
		}
	}
	return n
}

// Queued returns the number of jobs waiting for a worker
func (c *Coordinator) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.queue {
		if !w.settled {
			n++
		}
	}
	return n
}

// releaseLocked fails the job currently assigned to h with err
func (c *Coordinator) releaseLocked(h *WorkerHandle, err error) {
	if h.Current == nil {
		return
	}
	if w, ok := c.awaiting[h.Current.ID]; ok && !w.settled && w.worker == h.ID {
		c.settleLocked(w, result{err: err})
	}
	h.Current = nil
}

func (c *Coordinator) removeLocked(h *WorkerHandle, err error) {
	if err == nil {
		err = models.Errorf(models.ErrWorkerDisconnected, "worker %s removed", h.ID)
	}
	c.releaseLocked(h, err)
	h.State = WorkerRemoved
	h.RemovedAt = c.opts.Now()
	delete(c.workers, h.ID)
	c.log.Info("worker removed", "worker_id", h.ID, "name", h.Name)
}

func (c *Coordinator) settleLocked(w *waiter, r result) {
	w.settled = true
	c.dropLocked(w)
	w.done <- r
}

// dropLocked forgets a settled waiter. Queued entries are skipped lazily.
func (c *Coordinator) dropLocked(w *waiter) {
	if cur, ok := c.awaiting[w.job.ID]; ok && cur == w {
		delete(c.awaiting, w.job.ID)
	}
}
