package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// LoadConfig loads and parses a configuration file. Relative
// parameters_file paths are resolved against the config file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range cfg.Candidates {
		c := &cfg.Candidates[i]
		if c.ParametersFile != "" && !filepath.IsAbs(c.ParametersFile) {
			c.ParametersFile = filepath.Join(base, c.ParametersFile)
		}
	}
	if cfg.DataRoot != "" && !filepath.IsAbs(cfg.DataRoot) {
		cfg.DataRoot = filepath.Join(base, cfg.DataRoot)
	}
	return cfg, nil
}

// LoadParameters loads a parameter file. Files ending in .yaml or .yml use
// the YAML mapping form; anything else is read as legacy text.
func LoadParameters(path string) (ParameterList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters file %s: %w", path, err)
	}
	var list ParameterList
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		list, err = ParseParametersYAML(data)
	default:
		list, err = ParseParameterText(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse parameters file %s: %w", path, err)
	}
	return list, nil
}

// ResolveParameters returns the candidate's full declaration: the
// parameters file first, then inline parameters. An inline declaration
// replaces a file declaration of the same name.
func (c Candidate) ResolveParameters() (ParameterList, error) {
	if c.paramErr != nil {
		return nil, fmt.Errorf("candidate %s: %w", c.Name, c.paramErr)
	}
	if c.ParametersFile == "" {
		return c.Parameters, nil
	}
	fromFile, err := LoadParameters(c.ParametersFile)
	if err != nil {
		return nil, err
	}
	inline := make(map[string]int, len(c.Parameters))
	for i, p := range c.Parameters {
		inline[p.Name] = i
	}
	out := make(ParameterList, 0, len(fromFile)+len(c.Parameters))
	for _, p := range fromFile {
		if _, ok := inline[p.Name]; ok {
			continue
		}
		out = append(out, p)
	}
	return append(out, c.Parameters...), nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", cfg.LogFormat)
	}

	// Validate datasets
	if len(cfg.Datasets) == 0 {
		return fmt.Errorf("at least one dataset must be defined")
	}
	datasetNames := make(map[string]bool)
	for _, ds := range cfg.Datasets {
		if ds.Name == "" {
			return fmt.Errorf("dataset name cannot be empty")
		}
		if strings.Contains(ds.Name, "|") {
			return fmt.Errorf("dataset %s: name cannot contain '|'", ds.Name)
		}
		if datasetNames[ds.Name] {
			return fmt.Errorf("duplicate dataset name: %s", ds.Name)
		}
		datasetNames[ds.Name] = true
	}

	// Validate candidates
	if len(cfg.Candidates) == 0 {
		return fmt.Errorf("at least one candidate must be defined")
	}
	candidateNames := make(map[string]bool)
	for _, c := range cfg.Candidates {
		if err := validateCandidate(c); err != nil {
			return err
		}
		if candidateNames[c.Name] {
			return fmt.Errorf("duplicate candidate name: %s", c.Name)
		}
		candidateNames[c.Name] = true
	}

	if err := validateExecution(&cfg.Execution); err != nil {
		return fmt.Errorf("execution validation failed: %w", err)
	}

	if cfg.Output.Path == "" {
		return fmt.Errorf("output path cannot be empty")
	}

	if cfg.Checkpoint != nil {
		if len(cfg.Checkpoint.Endpoints) == 0 {
			return fmt.Errorf("checkpoint requires at least one endpoint")
		}
		if _, err := cfg.Checkpoint.GetDialTimeout(); err != nil {
			return fmt.Errorf("invalid checkpoint dial_timeout %s: %w", cfg.Checkpoint.DialTimeout, err)
		}
	}

	if cfg.Notify != nil {
		u, err := url.Parse(cfg.Notify.URL)
		if err != nil {
			return fmt.Errorf("invalid notify url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid notify url scheme %q (must be http or https)", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("notify url requires a host")
		}
	}

	return nil
}

func validateCandidate(c Candidate) error {
	if c.Name == "" {
		return fmt.Errorf("candidate name cannot be empty")
	}
	if strings.ContainsAny(c.Name, "|") {
		return fmt.Errorf("candidate %s: name cannot contain '|'", c.Name)
	}
	if c.Kind == "container" && c.Image == "" {
		return fmt.Errorf("candidate %s: container candidates require an image", c.Name)
	}
	for _, name := range c.Required {
		if name == "" {
			return fmt.Errorf("candidate %s: required parameter name cannot be empty", c.Name)
		}
	}
	return nil
}

// validateExecution validates the execution settings
func validateExecution(e *Execution) error {
	switch strings.ToLower(e.Mode) {
	case "", ModeLocal, ModeDistributed:
	default:
		return fmt.Errorf("invalid mode: %s (must be local or distributed)", e.Mode)
	}
	if e.ResolvedMode() == ModeDistributed && e.ListenAddr == "" {
		return fmt.Errorf("distributed mode requires listen_addr")
	}
	if e.Slots < 0 {
		return fmt.Errorf("slots cannot be negative, got %d", e.Slots)
	}
	if e.MaxRetries != nil && *e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", *e.MaxRetries)
	}
	validBackoffs := map[string]bool{
		utils.BackoffExponential: true,
		utils.BackoffLinear:      true,
		utils.BackoffConstant:    true,
		utils.BackoffNone:        true,
	}
	if !validBackoffs[e.RetryBackoff] {
		return fmt.Errorf("invalid retry_backoff: %s (must be exponential, linear, constant, or none)", e.RetryBackoff)
	}
	if e.RetryBaseMs < 0 || e.RetryMaxMs < 0 {
		return fmt.Errorf("retry delays cannot be negative")
	}
	if _, err := e.GetGracePeriod(); err != nil {
		return fmt.Errorf("invalid grace_period %s: %w", e.GracePeriod, err)
	}
	interval, err := e.GetHeartbeatInterval()
	if err != nil {
		return fmt.Errorf("invalid heartbeat_interval %s: %w", e.HeartbeatInterval, err)
	}
	timeout, err := e.GetHeartbeatTimeout()
	if err != nil {
		return fmt.Errorf("invalid heartbeat_timeout %s: %w", e.HeartbeatTimeout, err)
	}
	if interval <= 0 || timeout <= interval {
		return fmt.Errorf("heartbeat_timeout (%s) must exceed a positive heartbeat_interval (%s)", timeout, interval)
	}
	if e.MaxMessageBytes < 0 {
		return fmt.Errorf("max_message_bytes cannot be negative, got %d", e.MaxMessageBytes)
	}
	if e.QuarantineAfter < 0 {
		return fmt.Errorf("quarantine_after cannot be negative")
	}
	if d, err := e.GetQuarantineFor(); err != nil || d <= 0 {
		return fmt.Errorf("invalid quarantine_for %s: must be a positive duration", e.QuarantineFor)
	}
	return nil
}
