package rig

import "time"

// Backoff is the exponential retry policy for transient hardware
// failures. Attempt k (1-based) sleeps min(Initial * 2^(k-1), Max)
// before the next try.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff returns settings suited to slow CAT links.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     100 * time.Millisecond,
		Max:         2 * time.Second,
		MaxAttempts: 3,
	}
}

// Delay returns the sleep before the retry that follows failed attempt
// (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Polling is the adaptive hardware-polling policy. Right after any
// command the rig is polled at Active; once IdleAfter consecutive polls
// pass with no command the interval doubles each cycle until it reaches
// Idle. Transmitting always polls at Active so TX meters stay fresh.
type Polling struct {
	Active    time.Duration
	Idle      time.Duration
	IdleAfter int
}

// DefaultPolling returns settings suited to status displays.
func DefaultPolling() Polling {
	return Polling{
		Active:    250 * time.Millisecond,
		Idle:      5 * time.Second,
		IdleAfter: 4,
	}
}

// pollPlanner tracks idle cycles for a Polling policy. Owned by the
// control task, never accessed concurrently.
type pollPlanner struct {
	policy     Polling
	idleCycles int
}

// activity resets the planner after a command completes.
func (p *pollPlanner) activity() {
	p.idleCycles = 0
}

// polled records one completed poll with no intervening command.
func (p *pollPlanner) polled() {
	p.idleCycles++
}

// next returns the interval until the next poll.
func (p *pollPlanner) next(transmitting bool) time.Duration {
	if transmitting {
		return p.policy.Active
	}
	if p.idleCycles <= p.policy.IdleAfter {
		return p.policy.Active
	}
	d := p.policy.Active
	for i := p.policy.IdleAfter; i < p.idleCycles; i++ {
		d *= 2
		if d >= p.policy.Idle {
			return p.policy.Idle
		}
	}
	return d
}
