// Package circuit stops calling a summarizer that keeps failing, so condensation falls
// back to the unchanged view at once instead of waiting out every retry.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Probing whether the provider recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Successes in half-open before closing
	Cooldown         time.Duration // Time spent open before probing
}

// DefaultConfig provides reasonable defaults for summarizer calls.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 1,
	Cooldown:         30 * time.Second,
}

// OpenError is returned without calling the provider while the circuit is open.
type OpenError struct {
	Model    string
	RetryIn  time.Duration
	Failures int
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s after %d consecutive failures, next probe in %v",
		e.Model, e.Failures, e.RetryIn.Round(time.Millisecond))
}

// Breaker tracks consecutive failures of one client. It is safe for concurrent use.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Breaker struct {
	config       Config
	now          func() time.Time
	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	openedAt     time.Time
	probing      bool
}

// New creates a breaker. Zero fields in cfg take their DefaultConfig value.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig.Cooldown
	}
	return &Breaker{config: cfg, now: time.Now}
}

// Allow reports whether a request may proceed. Once the cooldown has elapsed an open
// breaker lets exactly one probe through; concurrent callers are rejected until it
// reports back.
func (b *Breaker) Allow() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, 0
	case Open:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.config.Cooldown {
			return false, b.config.Cooldown - elapsed
		}
		b.state = HalfOpen
		b.successCount = 0
		b.probing = true
		return true, 0
	default:
		if b.probing {
			return false, 0
		}
		b.probing = true
		return true, 0
	}
}

// Record reports the outcome of an allowed request.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if success {
		b.failureCount = 0
		if b.state == HalfOpen {
			b.successCount++
			if b.successCount >= b.config.SuccessThreshold {
				b.state = Closed
				b.successCount = 0
			}
		}
		return
	}

	b.failureCount++
	if b.state == HalfOpen || b.failureCount >= b.config.FailureThreshold {
		b.state = Open
		b.openedAt = b.now()
		b.successCount = 0
	}
}

// Release ends a probe without counting it either way, for calls cut short by the caller.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current count of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
	b.probing = false
}
