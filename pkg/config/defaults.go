package config

import "runtime"

const (
	DefaultMaxRetries        = 2
	DefaultRetryBackoff      = "exponential"
	DefaultRetryBaseMs       = 200
	DefaultRetryMaxMs        = 5000
	DefaultGracePeriod       = "10s"
	DefaultHeartbeatInterval = "1s"
	DefaultHeartbeatTimeout  = "5s"
	DefaultQuarantineFor     = "30s"
	DefaultDialTimeout       = "5s"
	DefaultCheckpointPrefix  = "/bench/"
)

// ApplyDefaults fills unset fields. It runs before validation so that
// validation sees the effective values.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	e := &cfg.Execution
	if e.Slots == 0 {
		e.Slots = runtime.NumCPU()
	}
	if e.RetryBackoff == "" {
		e.RetryBackoff = DefaultRetryBackoff
	}
	if e.RetryBaseMs == 0 {
		e.RetryBaseMs = DefaultRetryBaseMs
	}
	if e.RetryMaxMs == 0 {
		e.RetryMaxMs = DefaultRetryMaxMs
	}
	if e.GracePeriod == "" {
		e.GracePeriod = DefaultGracePeriod
	}
	if e.HeartbeatInterval == "" {
		e.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if e.HeartbeatTimeout == "" {
		e.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if e.QuarantineFor == "" {
		e.QuarantineFor = DefaultQuarantineFor
	}
	for i := range cfg.Candidates {
		if cfg.Candidates[i].Kind == "" {
			cfg.Candidates[i].Kind = cfg.Candidates[i].Name
		}
	}
	if cp := cfg.Checkpoint; cp != nil {
		if cp.Prefix == "" {
			cp.Prefix = DefaultCheckpointPrefix
		}
		if cp.DialTimeout == "" {
			cp.DialTimeout = DefaultDialTimeout
		}
	}
}
