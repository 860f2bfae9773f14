package resilience

import (
	"sync"
	"time"
)

// Breaker is a per-source circuit breaker. After Threshold consecutive
// failures calls are short-circuited until Cooldown has elapsed since the
// last failure; the next Allow after the cooldown closes the breaker and
// resets the counter.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	open        bool
	now         func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{Threshold: threshold, Cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed. An open breaker whose cooldown
// has elapsed closes again here, with the failure counter reset.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.now().Sub(b.lastFailure) >= b.Cooldown {
		b.open = false
		b.failures = 0
		return true
	}
	return false
}

// Success resets the failure counter. It is only meaningful while closed;
// no calls are made while open, so success is never observed there.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// Failure records a failed call and opens the breaker once the
// consecutive-failure threshold is reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.Threshold {
		b.open = true
	}
}

// Open reports the current gate state without side effects.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Reset returns the breaker to its initial closed state. Test hook.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.open = false
	b.lastFailure = time.Time{}
	b.mu.Unlock()
}
