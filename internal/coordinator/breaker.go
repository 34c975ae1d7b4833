package coordinator

import "time"

// BreakerState is the quarantine state of a worker name
type BreakerState int

const (
	// BreakerClosed receives assignments
	BreakerClosed BreakerState = iota
	// BreakerOpen is quarantined until its cooldown elapses
	BreakerOpen
	// BreakerHalfOpen receives assignments; one more failure reopens it
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// circuit tracks consecutive failures of one worker name
type circuit struct {
	state    BreakerState
	failures int
	changed  time.Time
}

// breaker keeps workers with repeated local failures out of assignment.
// Circuits are keyed by worker name so that re-registering does not clear
// them. It is guarded by the coordinator mutex.
type breaker struct {
	threshold int // zero disables the breaker
	cooldown  time.Duration
	circuits  map[string]*circuit
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		circuits:  make(map[string]*circuit),
	}
}

// state returns the state of name at now, moving an open circuit to
// half-open once its cooldown has elapsed
func (b *breaker) state(name string, now time.Time) BreakerState {
	c, ok := b.circuits[name]
	if !ok {
		return BreakerClosed
	}
	if c.state == BreakerOpen && now.Sub(c.changed) >= b.cooldown {
		c.state = BreakerHalfOpen
		c.changed = now
	}
	return c.state
}

func (b *breaker) allow(name string, now time.Time) bool {
	return b.state(name, now) != BreakerOpen
}

func (b *breaker) success(name string, now time.Time) {
	c, ok := b.circuits[name]
	if !ok {
		return
	}
	if c.state == BreakerHalfOpen {
		c.state = BreakerClosed
		c.changed = now
	}
	c.failures = 0
}

// failure counts one local failure and reports whether the circuit opened
func (b *breaker) failure(name string, now time.Time) bool {
	if b.threshold <= 0 {
		return false
	}
	c, ok := b.circuits[name]
	if !ok {
		c = &circuit{changed: now}
		b.circuits[name] = c
	}
	c.failures++
	switch b.state(name, now) {
	case BreakerHalfOpen:
		c.state = BreakerOpen
		c.changed = now
		return true
	case BreakerClosed:
		if c.failures >= b.threshold {
			c.state = BreakerOpen
			c.changed = now
			return true
		}
	}
	return false
}
