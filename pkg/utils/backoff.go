package utils

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff kinds accepted by BackoffFromConfig
const (
	BackoffNone        = "none"
	BackoffConstant    = "constant"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// BackoffStrategy paces retries of jobs, reports and callbacks
type BackoffStrategy interface {
	// NextDelay returns the wait before retry number attempt (0-indexed)
	NextDelay(attempt int) time.Duration
}

// NoBackoff retries immediately
type NoBackoff struct{}

func (NoBackoff) NextDelay(int) time.Duration { return 0 }

// ConstantBackoff waits the same delay before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

func NewConstantBackoff(delay time.Duration) *ConstantBackoff {
	return &ConstantBackoff{Delay: delay}
}

func (b *ConstantBackoff) NextDelay(int) time.Duration {
	return b.Delay
}

// LinearBackoff waits Step times the retry number, capped at Max
type LinearBackoff struct {
	Step time.Duration
	Max  time.Duration
}

func NewLinearBackoff(step, max time.Duration) *LinearBackoff {
	return &LinearBackoff{Step: step, Max: max}
}

func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	return capDelay(float64(b.Step)*float64(attempt+1), b.Max)
}

// ExponentialBackoff multiplies Base by Factor for every retry, capped at
// Max. Jitter spreads each delay over [0.5, 1.5) of its nominal value so
// that workers failing together do not retry in lockstep.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter bool
}

// NewExponentialBackoff creates an exponential strategy. A non-positive
// factor doubles the delay.
func NewExponentialBackoff(base, max time.Duration, factor float64, jitter bool) *ExponentialBackoff {
	if factor <= 0 {
		factor = 2
	}
	return &ExponentialBackoff{Base: base, Max: max, Factor: factor, Jitter: jitter}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	d := capDelay(float64(b.Base)*math.Pow(b.Factor, float64(attempt)), b.Max)
	if b.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

// capDelay converts d to a duration no larger than max. A zero max leaves
// d uncapped.
func capDelay(d float64, max time.Duration) time.Duration {
	if max > 0 && d > float64(max) {
		return max
	}
	return time.Duration(d)
}

// BackoffFromConfig builds the strategy named by kind from millisecond
// settings. Unknown kinds fall back to jittered exponential; a zero max
// caps delays at 30s.
func BackoffFromConfig(kind string, baseMs, maxMs int) BackoffStrategy {
	base := time.Duration(baseMs) * time.Millisecond
	max := time.Duration(maxMs) * time.Millisecond
	if max == 0 {
		max = 30 * time.Second
	}

	switch kind {
	case BackoffNone:
		return NoBackoff{}
	case BackoffConstant:
		return NewConstantBackoff(base)
	case BackoffLinear:
		return NewLinearBackoff(base, max)
	default:
		return NewExponentialBackoff(base, max, 2, true)
	}
}

// Sleep waits for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
