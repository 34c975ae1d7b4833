package scheduler

import (
	"time"

	"github.com/GoSim-25-26J-441/bench-core/pkg/config"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// RetryPolicy decides whether a failed attempt is resubmitted and after
// what delay. Only transient failures (worker timeout or disconnect) are
// retried; candidate and shape errors are final.
type RetryPolicy struct {
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewRetryPolicy creates a retry policy with explicit parameters
func NewRetryPolicy(maxRetries int, backoff utils.BackoffStrategy) *RetryPolicy {
	if backoff == nil {
		backoff = utils.NoBackoff{}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{maxRetries: maxRetries, backoff: backoff}
}

// NewRetryPolicyFromConfig creates a retry policy from the execution config
func NewRetryPolicyFromConfig(e *config.Execution) *RetryPolicy {
	return NewRetryPolicy(e.Retries(), utils.BackoffFromConfig(e.RetryBackoff, e.RetryBaseMs, e.RetryMaxMs))
}

// ShouldRetry reports whether a job that has made attempts executions and
// failed with err may run again
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil || !models.IsTransient(err) {
		return false
	}
	return attempts <= p.maxRetries
}

// Delay returns the wait before re-queueing after the given attempt (1-based)
func (p *RetryPolicy) Delay(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	return p.backoff.NextDelay(attempts - 1)
}

// MaxRetries returns the retry bound
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}
