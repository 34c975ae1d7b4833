package coordinator

import (
	"time"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// WorkerState is a position in the worker state machine
//
//	Registering → Idle → Assigned → (Reporting | TimedOut) → Idle | Removed
type WorkerState int

const (
	// WorkerRegistering has been acknowledged but has not asked for work yet
	WorkerRegistering WorkerState = iota
	// WorkerIdle is ready for an assignment
	WorkerIdle
	// WorkerAssigned is executing exactly one job
	WorkerAssigned
	// WorkerReporting has returned its result and not yet asked for more work
	WorkerReporting
	// WorkerTimedOut missed its heartbeat deadline while assigned. Its job
	// has been handed back to the scheduler.
	WorkerTimedOut
	// WorkerRemoved is no longer known to the master
	WorkerRemoved
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRegistering:
		return "registering"
	case WorkerIdle:
		return "idle"
	case WorkerAssigned:
		return "assigned"
	case WorkerReporting:
		return "reporting"
	case WorkerTimedOut:
		return "timed_out"
	case WorkerRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// WorkerHandle is the master's view of one worker. Handles returned by
// Coordinator.Workers are copies.
type WorkerHandle struct {
	ID       string
	Name     string
	Version  string
	Addr     string
	State    WorkerState
	LastSeen time.Time
	// RemovedAt is set once State is WorkerRemoved
	RemovedAt time.Time
	Current   *models.Job
	// Completed counts accepted reports
	Completed int
	// Quarantine is filled in by Coordinator.Workers
	Quarantine BreakerState
}

func (h *WorkerHandle) clone() WorkerHandle {
	out := *h
	if h.Current != nil {
		job := *h.Current
		out.Current = &job
	}
	return out
}
