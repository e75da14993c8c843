package llm

import (
	"sync"
	"time"
)

// breakerState is the classic three-state circuit breaker.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker is a per-provider, per-process failure tracker (§4.A,
// §5 "per-process and does not require coordination across workers").
// Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	window           time.Duration
	cooldown         time.Duration
	halfOpenProbes   int

	state        breakerState
	failures     []time.Time
	openedAt     time.Time
	probesIssued int
}

// NewCircuitBreaker builds a breaker that opens after threshold failures
// within window, cools down for cooldown, then admits halfOpenProbes probe
// calls before fully closing again.
func NewCircuitBreaker(threshold int, window, cooldown time.Duration, halfOpenProbes int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if halfOpenProbes <= 0 {
		halfOpenProbes = 1
	}
	return &CircuitBreaker{
		failureThreshold: threshold,
		window:           window,
		cooldown:         cooldown,
		halfOpenProbes:   halfOpenProbes,
		state:            breakerClosed,
	}
}

// Allow reports whether a call should be attempted right now. A false
// return means the caller should fast-fail to the next fallback provider.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			b.probesIssued = 0
			return b.admitProbeLocked()
		}
		return false
	case breakerHalfOpen:
		return b.admitProbeLocked()
	}
	return true
}

func (b *CircuitBreaker) admitProbeLocked() bool {
	if b.probesIssued >= b.halfOpenProbes {
		return false
	}
	b.probesIssued++
	return true
}

// RecordSuccess closes the breaker (from any state).
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = nil
	b.probesIssued = 0
}

// RecordFailure records a failure and opens the breaker if the threshold is
// crossed within the configured window, or immediately if currently
// half-open (a probe failure reopens the circuit).
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.open()
		return
	}

	now := time.Now()
	b.failures = append(b.failures, now)
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = kept

	if len(b.failures) >= b.failureThreshold {
		b.open()
	}
}

func (b *CircuitBreaker) open() {
	b.state = breakerOpen
	b.openedAt = time.Now()
	b.failures = nil
	b.probesIssued = 0
}

// CircuitBreakers is a process-local registry of one breaker per provider
// id, lazily created.
type CircuitBreakers struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	threshold int
	window    time.Duration
	cooldown  time.Duration
	probes    int
}

// NewCircuitBreakers builds a registry using a single configuration shared
// by every provider's breaker.
func NewCircuitBreakers(threshold int, window, cooldown time.Duration, halfOpenProbes int) *CircuitBreakers {
	return &CircuitBreakers{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		probes:    halfOpenProbes,
	}
}

// For returns (creating if needed) the breaker for a provider id.
func (r *CircuitBreakers) For(providerID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[providerID]
	if !ok {
		b = NewCircuitBreaker(r.threshold, r.window, r.cooldown, r.probes)
		r.breakers[providerID] = b
	}
	return b
}
