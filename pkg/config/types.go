package config

import (
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Config represents one benchmark run
type Config struct {
	LogLevel   string              `yaml:"log_level"`
	LogFormat  string              `yaml:"log_format,omitempty"` // json or text
	RunID      string              `yaml:"run_id,omitempty"`
	DataRoot   string              `yaml:"data_root,omitempty"`
	Datasets   []models.DatasetRef `yaml:"datasets"`
	Candidates []Candidate         `yaml:"candidates"`
	Execution  Execution           `yaml:"execution"`
	Output     Output              `yaml:"output"`
	Checkpoint *Checkpoint         `yaml:"checkpoint,omitempty"`
	Notify     *Notify             `yaml:"notify,omitempty"`
	HTTPAddr   string              `yaml:"http_addr,omitempty"`
}

// Candidate declares one detector and its parameter space
type Candidate struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"` // dummy, knn, container
	Image    string   `yaml:"image,omitempty"`
	Command  []string `yaml:"command,omitempty"`
	Required []string `yaml:"required,omitempty"`

	Parameters     ParameterList `yaml:"parameters,omitempty"`
	ParametersFile string        `yaml:"parameters_file,omitempty"` // legacy text format

	// paramErr holds a malformed inline declaration until planning
	paramErr error
}

// Spec returns the wire/job form of the candidate
func (c Candidate) Spec() models.CandidateSpec {
	return models.CandidateSpec{
		Name:     c.Name,
		Kind:     c.Kind,
		Image:    c.Image,
		Command:  append([]string(nil), c.Command...),
		Required: append([]string(nil), c.Required...),
	}
}

// Execution selects local or distributed execution and its tuning knobs
type Execution struct {
	Mode              string `yaml:"mode,omitempty"` // local or distributed
	Slots             int    `yaml:"slots,omitempty"`
	MaxRetries        *int   `yaml:"max_retries,omitempty"`
	RetryBackoff      string `yaml:"retry_backoff,omitempty"` // exponential, linear, constant, none
	RetryBaseMs       int    `yaml:"retry_base_ms,omitempty"`
	RetryMaxMs        int    `yaml:"retry_max_ms,omitempty"`
	GracePeriod       string `yaml:"grace_period,omitempty"`
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty"`
	HeartbeatTimeout  string `yaml:"heartbeat_timeout,omitempty"`
	ListenAddr        string `yaml:"listen_addr,omitempty"`
	// QuarantineAfter consecutive dataset load failures keep a worker out
	// of assignment for QuarantineFor. Zero disables quarantine.
	QuarantineAfter int    `yaml:"quarantine_after,omitempty"`
	QuarantineFor   string `yaml:"quarantine_for,omitempty"`
	// MaxMessageBytes bounds one worker message in either direction. Zero
	// uses the transport default.
	MaxMessageBytes int `yaml:"max_message_bytes,omitempty"`
}

const (
	ModeLocal       = "local"
	ModeDistributed = "distributed"
)

// ResolvedMode returns the execution path. An explicit mode wins; otherwise
// a listen address implies distributed.
func (e *Execution) ResolvedMode() string {
	switch strings.ToLower(e.Mode) {
	case ModeLocal:
		return ModeLocal
	case ModeDistributed:
		return ModeDistributed
	}
	if e.ListenAddr != "" {
		return ModeDistributed
	}
	return ModeLocal
}

// Retries returns the retry bound, falling back to the default
func (e *Execution) Retries() int {
	if e.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *e.MaxRetries
}

// GetGracePeriod parses the grace period string to time.Duration
func (e *Execution) GetGracePeriod() (time.Duration, error) {
	return time.ParseDuration(e.GracePeriod)
}

// GetHeartbeatInterval parses the heartbeat interval string to time.Duration
func (e *Execution) GetHeartbeatInterval() (time.Duration, error) {
	return time.ParseDuration(e.HeartbeatInterval)
}

// GetHeartbeatTimeout parses the heartbeat timeout string to time.Duration
func (e *Execution) GetHeartbeatTimeout() (time.Duration, error) {
	return time.ParseDuration(e.HeartbeatTimeout)
}

// GetQuarantineFor parses the quarantine cooldown string to time.Duration
func (e *Execution) GetQuarantineFor() (time.Duration, error) {
	return time.ParseDuration(e.QuarantineFor)
}

// Output names the artifacts written at the end of a run
type Output struct {
	Path    string `yaml:"path"`               // JSON score matrix
	CSVPath string `yaml:"csv_path,omitempty"` // per-entry metric digest
}

// Checkpoint configures the etcd write-through store
type Checkpoint struct {
	Endpoints   []string `yaml:"endpoints"`
	Prefix      string   `yaml:"prefix,omitempty"`
	Resume      bool     `yaml:"resume,omitempty"`
	DialTimeout string   `yaml:"dial_timeout,omitempty"`
}

// GetDialTimeout parses the dial timeout string to time.Duration
func (c *Checkpoint) GetDialTimeout() (time.Duration, error) {
	return time.ParseDuration(c.DialTimeout)
}

// Notify configures the completion callback
type Notify struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret,omitempty"`
}
