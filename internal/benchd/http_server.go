// Package benchd wires a suite run into a master process: it serves the
// coordinator to remote workers over gRPC and exposes run status over
// HTTP.
package benchd

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/coordinator"
	"github.com/GoSim-25-26J-441/bench-core/internal/suite"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// JobView is the JSON form of a job
type JobView struct {
	ID          string `json:"id"`
	Dataset     string `json:"dataset"`
	Candidate   string `json:"candidate"`
	Config      string `json:"config"`
	State       string `json:"state"`
	Attempt     int    `json:"attempt"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	SubmittedAt int64  `json:"submitted_at_unix_ms,omitempty"`
}

// WorkerView is the JSON form of a registered worker
type WorkerView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	Addr       string `json:"addr,omitempty"`
	State      string `json:"state"`
	LastSeenMs int64  `json:"last_seen_unix_ms"`
	CurrentJob string `json:"current_job,omitempty"`
	Completed  int    `json:"completed"`
	Quarantine string `json:"quarantine"`
}

type HTTPServer struct {
	mux    *http.ServeMux
	runner *suite.Runner
	coord  *coordinator.Coordinator
}

// NewHTTPServer serves the status of runner. coord is nil for local runs.
func NewHTTPServer(runner *suite.Runner, coord *coordinator.Coordinator) *HTTPServer {
	s := &HTTPServer{
		mux:    http.NewServeMux(),
		runner: runner,
		coord:  coord,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/suite", s.handleSuite)
	s.mux.HandleFunc("/v1/suite/jobs", s.handleJobs)
	s.mux.HandleFunc("/v1/suite/workers", s.handleWorkers)
	s.mux.HandleFunc("/v1/suite/dump", s.handleDump)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSuite handles GET /v1/suite
func (s *HTTPServer) handleSuite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"suite": s.runner.Status()})
}

// handleJobs handles GET /v1/suite/jobs with pagination and state filter
func (s *HTTPServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, 1000)
		}
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	state := r.URL.Query().Get("state")
	switch state {
	case "", "pending", "running", "succeeded", "failed":
	default:
		s.writeError(w, http.StatusBadRequest, "invalid state filter: "+state)
		return
	}

	var views []JobView
	for _, job := range s.runner.Jobs() {
		if state != "" && job.State.String() != state {
			continue
		}
		views = append(views, jobView(job))
	}
	total := len(views)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   views[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleWorkers handles GET /v1/suite/workers
func (s *HTTPServer) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	views := []WorkerView{}
	if s.coord != nil {
		for _, h := range s.coord.Workers() {
			views = append(views, workerView(h))
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"workers": views,
		"queued":  s.queued(),
	})
}

// handleDump handles GET /v1/suite/dump: the score matrix collected so far
func (s *HTTPServer) handleDump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.runner.Aggregator().Document())
}

func (s *HTTPServer) queued() int {
	if s.coord == nil {
		return 0
	}
	return s.coord.Queued()
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

func jobView(job models.Job) JobView {
	v := JobView{
		ID:        job.ID,
		Dataset:   job.Dataset.Name,
		Candidate: job.Candidate.Name,
		Config:    job.Config.Key(),
		State:     job.State.String(),
		Attempt:   job.Attempt,
		ElapsedMs: job.Elapsed().Milliseconds(),
	}
	if !job.SubmittedAt.IsZero() {
		v.SubmittedAt = job.SubmittedAt.UnixMilli()
	}
	if job.Err != nil {
		v.Reason = models.Reason(job.Err)
		v.Error = job.Err.Error()
	}
	return v
}

func workerView(h coordinator.WorkerHandle) WorkerView {
	v := WorkerView{
		ID:         h.ID,
		Name:       h.Name,
		Version:    h.Version,
		Addr:       h.Addr,
		State:      h.State.String(),
		LastSeenMs: h.LastSeen.UnixMilli(),
		Completed:  h.Completed,
		Quarantine: h.Quarantine.String(),
	}
	if h.Current != nil {
		v.CurrentJob = h.Current.ID
	}
	return v
}
