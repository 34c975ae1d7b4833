// Package protocol defines the messages exchanged between the master and
// its workers. Every message is one variant of the Message union; the
// master answers each request with exactly one message.
//
//	worker → master: Register, Heartbeat, Report
//	master → worker: RegisterAck, Assign, Idle, ReportAck, Reject
package protocol

import (
	"time"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Message is implemented by every protocol variant
type Message interface {
	// Type is the wire discriminator
	Type() string
	isMessage()
}

// Register announces a worker. Name is stable across restarts of the same
// worker process.
type Register struct {
	Name    string
	Version string
}

// RegisterAck assigns the worker its session ID
type RegisterAck struct {
	WorkerID          string
	HeartbeatInterval time.Duration
}

// Heartbeat proves liveness. JobID is the job the worker is executing, or
// empty when it is ready for work.
type Heartbeat struct {
	WorkerID string
	JobID    string
}

// Assign hands one job attempt to a worker
type Assign struct {
	JobID     string
	Attempt   int
	Dataset   models.DatasetRef
	Candidate models.CandidateSpec
	Config    models.Configuration
}

// Idle tells a ready worker that no job is queued
type Idle struct{}

// Report returns the outcome of an assigned job. Either Scores is set or
// ErrorKind holds a models.Reason code and Error the message.
type Report struct {
	WorkerID  string
	JobID     string
	Attempt   int
	Scores    models.ScoreVector
	ErrorKind string
	Error     string
}

// Failed reports whether the report carries an error
func (r Report) Failed() bool { return r.ErrorKind != "" || r.Error != "" }

// Err rebuilds the typed error carried by a failed report
func (r Report) Err() error {
	if !r.Failed() {
		return nil
	}
	return models.Errorf(models.KindFromReason(r.ErrorKind), "worker %s: %s", r.WorkerID, r.Error)
}

// ReportAck acknowledges a report. Accepted is false for duplicates and
// reports about jobs the master no longer waits for.
type ReportAck struct {
	Accepted bool
}

// Reject refuses a request, typically from an unknown worker, which
// should register again
type Reject struct {
	Reason string
}

const (
	TypeRegister    = "register"
	TypeRegisterAck = "register_ack"
	TypeHeartbeat   = "heartbeat"
	TypeAssign      = "assign"
	TypeIdle        = "idle"
	TypeReport      = "report"
	TypeReportAck   = "report_ack"
	TypeReject      = "reject"
)

func (Register) Type() string    { return TypeRegister }
func (RegisterAck) Type() string { return TypeRegisterAck }
func (Heartbeat) Type() string   { return TypeHeartbeat }
func (Assign) Type() string      { return TypeAssign }
func (Idle) Type() string        { return TypeIdle }
func (Report) Type() string      { return TypeReport }
func (ReportAck) Type() string   { return TypeReportAck }
func (Reject) Type() string      { return TypeReject }

func (Register) isMessage()    {}
func (RegisterAck) isMessage() {}
func (Heartbeat) isMessage()   {}
func (Assign) isMessage()      {}
func (Idle) isMessage()        {}
func (Report) isMessage()      {}
func (ReportAck) isMessage()   {}
func (Reject) isMessage()      {}

// AssignFor builds the assignment of job
func AssignFor(job models.Job) Assign {
	return Assign{
		JobID:     job.ID,
		Attempt:   job.Attempt,
		Dataset:   job.Dataset,
		Candidate: job.Candidate,
		Config:    job.Config,
	}
}
