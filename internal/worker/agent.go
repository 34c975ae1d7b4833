package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/protocol"
	"github.com/GoSim-25-26J-441/bench-core/internal/scheduler"
	"github.com/GoSim-25-26J-441/bench-core/internal/transport"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// Exchanger sends one request to the master and returns its response.
// transport.Client implements it.
type Exchanger interface {
	Exchange(ctx context.Context, msg protocol.Message) (protocol.Message, error)
}

// AgentOptions configures an Agent
type AgentOptions struct {
	// Name identifies the worker across re-registrations
	Name    string
	Version string
	// Backoff paces register and report retries. Defaults to exponential
	// backoff from 200ms to 5s.
	Backoff utils.BackoffStrategy
	// ReportAttempts bounds how often a report is sent before it is
	// dropped. Defaults to 5.
	ReportAttempts int
	// RequestTimeout bounds each exchange. Defaults to 5s.
	RequestTimeout time.Duration
}

var errRejected = errors.New("rejected by master")

// Agent is a remote worker. It registers with the master, proves liveness
// with heartbeats, runs at most one assigned job at a time and reports
// the outcome.
type Agent struct {
	master Exchanger
	exec   scheduler.Executor
	opts   AgentOptions
	log    *slog.Logger
}

// NewAgent creates an agent executing jobs with exec
func NewAgent(master Exchanger, exec scheduler.Executor, opts AgentOptions) *Agent {
	if opts.Name == "" {
		opts.Name = "worker"
	}
	if opts.Backoff == nil {
		opts.Backoff = utils.NewExponentialBackoff(200*time.Millisecond, 5*time.Second, 2, true)
	}
	if opts.ReportAttempts <= 0 {
		opts.ReportAttempts = 5
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	return &Agent{master: master, exec: exec, opts: opts, log: logger.Component("worker").With("name", opts.Name)}
}

// Run serves the master until ctx is done. A rejected session registers
// again.
func (a *Agent) Run(ctx context.Context) error {
	for {
		ack, err := a.register(ctx)
		if err != nil {
			return err
		}
		err = a.session(ctx, ack)
		if errors.Is(err, errRejected) {
			a.log.Warn("session rejected, registering again", "worker_id", ack.WorkerID)
			continue
		}
		return err
	}
}

func (a *Agent) register(ctx context.Context) (protocol.RegisterAck, error) {
	for attempt := 0; ; attempt++ {
		resp, err := a.exchange(ctx, protocol.Register{Name: a.opts.Name, Version: a.opts.Version})
		if err == nil {
			if ack, ok := resp.(protocol.RegisterAck); ok {
				a.log.Info("registered", "worker_id", ack.WorkerID, "heartbeat_interval", ack.HeartbeatInterval)
				return ack, nil
			}
			err = fmt.Errorf("unexpected %s response to register", resp.Type())
		}
		delay := a.opts.Backoff.NextDelay(attempt)
		a.log.Warn("register failed", "attempt", attempt+1, "retry_in", delay, "error", err)
		if err := utils.Sleep(ctx, delay); err != nil {
			return protocol.RegisterAck{}, err
		}
	}
}

type outcome struct {
	job    models.Job
	scores models.ScoreVector
	err    error
}

func (a *Agent) session(ctx context.Context, ack protocol.RegisterAck) error {
	interval := ack.HeartbeatInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var current *models.Job
	cancelJob := context.CancelFunc(func() {})
	results := make(chan outcome, 1)
	defer func() { cancelJob() }()

	heartbeat := func() error {
		hb := protocol.Heartbeat{WorkerID: ack.WorkerID}
		if current != nil {
			hb.JobID = current.ID
		}
		resp, err := a.exchange(ctx, hb)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.Warn("heartbeat failed", "worker_id", ack.WorkerID, "error", err)
			return nil
		}
		switch m := resp.(type) {
		case protocol.Assign:
			if current != nil {
				a.log.Warn("assignment while busy ignored", "job_id", m.JobID, "current", current.ID)
				return nil
			}
			job := jobFromAssign(m)
			current = &job
			var jobCtx context.Context
			jobCtx, cancelJob = context.WithCancel(ctx)
			a.log.Info("job assigned", "job_id", job.ID, "attempt", job.Attempt, "dataset", job.Dataset.Name, "candidate", job.Candidate.Name, "config", job.Config.Key())
			go func() {
				scores, err := a.exec.Execute(jobCtx, job)
				results <- outcome{job: job, scores: scores, err: err}
			}()
		case protocol.Idle:
		case protocol.Reject:
			return fmt.Errorf("%w: %s", errRejected, m.Reason)
		default:
			a.log.Warn("unexpected heartbeat response", "type", resp.Type())
		}
		return nil
	}

	if err := heartbeat(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-results:
			cancelJob()
			if err := a.report(ctx, ack.WorkerID, out); err != nil {
				return err
			}
			current = nil
			// Ask for the next job without waiting for the ticker
			if err := heartbeat(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := heartbeat(); err != nil {
				return err
			}
		}
	}
}

// report delivers an outcome, retrying transient transport failures. A
// score report the master refuses outright, for example for its size, is
// replaced by a failure report. A report that cannot be delivered is
// dropped; the master then times the job out.
func (a *Agent) report(ctx context.Context, workerID string, out outcome) error {
	msg := protocol.Report{WorkerID: workerID, JobID: out.job.ID, Attempt: out.job.Attempt, Scores: out.scores}
	if out.err != nil {
		msg.Scores = nil
		msg.ErrorKind = models.Reason(out.err)
		msg.Error = out.err.Error()
		a.log.Warn("job failed", "job_id", out.job.ID, "reason", msg.ErrorKind, "error", out.err)
	}

	for attempt := 0; attempt < a.opts.ReportAttempts; attempt++ {
		resp, err := a.exchange(ctx, msg)
		if err == nil {
			switch m := resp.(type) {
			case protocol.ReportAck:
				a.log.Debug("report delivered", "job_id", out.job.ID, "accepted", m.Accepted)
				return nil
			case protocol.Reject:
				return fmt.Errorf("%w: %s", errRejected, m.Reason)
			default:
				err = fmt.Errorf("unexpected %s response to report", resp.Type())
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !transport.Retryable(err) {
			if msg.Failed() {
				break
			}
			a.log.Error("report refused, reporting the job as failed", "job_id", out.job.ID, "scores", len(msg.Scores), "error", err)
			msg.Scores = nil
			msg.ErrorKind = models.Reason(models.ErrCandidateExecution)
			msg.Error = fmt.Sprintf("report not delivered: %v", err)
			continue
		}
		delay := a.opts.Backoff.NextDelay(attempt)
		a.log.Warn("report failed", "job_id", out.job.ID, "attempt", attempt+1, "retry_in", delay, "error", err)
		if err := utils.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	a.log.Error("report dropped", "job_id", out.job.ID, "attempts", a.opts.ReportAttempts)
	return nil
}

func (a *Agent) exchange(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
	defer cancel()
	return a.master.Exchange(ctx, msg)
}

func jobFromAssign(m protocol.Assign) models.Job {
	return models.Job{
		ID:        m.JobID,
		Attempt:   m.Attempt,
		Dataset:   m.Dataset,
		Candidate: m.Candidate,
		Config:    m.Config,
		State:     models.JobRunning,
		StartedAt: time.Now(),
	}
}
