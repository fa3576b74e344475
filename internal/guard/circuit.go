package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arenadesk/platform/internal/domain"
)

// CircuitState is the position of one circuit.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned by Do when the call was not attempted.
var ErrCircuitOpen = errors.New("circuit open")

const circuitGuard = "circuit_breaker"

// CircuitBreaker trips per downstream key after failThreshold consecutive
// failures and lets one probe through once resetTimeout has passed.
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	now           func() time.Time

	// OnStateChange, when set, is called with the lock released after a
	// circuit moves between states.
	OnStateChange func(key string, from, to CircuitState)
}

type circuit struct {
	state    CircuitState
	failures int
	probing  bool
	openedAt time.Time
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: max(failThreshold, 1),
		resetTimeout:  resetTimeout,
		now:           time.Now,
	}
}

// Do runs fn when the circuit for key admits a call and records its outcome.
// Context cancellation by the caller does not count as a failure.
func (cb *CircuitBreaker) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if res := cb.Check(ctx, key); !res.Allowed {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, res.Reason)
	}
	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess(key)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		cb.release(key)
	default:
		cb.RecordFailure(key)
	}
	return err
}

// Check reports whether a call to key may proceed. An open circuit past its
// reset timeout admits exactly one probe.
func (cb *CircuitBreaker) Check(_ context.Context, key string) domain.GuardResult {
	cb.mu.Lock()
	c := cb.get(key)
	from := c.state

	var res domain.GuardResult
	switch c.state {
	case CircuitClosed:
		res.Allowed = true
	case CircuitOpen:
		if wait := cb.resetTimeout - cb.now().Sub(c.openedAt); wait > 0 {
			res = domain.GuardResult{Guard: circuitGuard, Reason: fmt.Sprintf("circuit open for %s, resets in %s", key, wait.Round(time.Millisecond))}
			break
		}
		c.state, c.probing = CircuitHalfOpen, true
		res.Allowed = true
	case CircuitHalfOpen:
		if c.probing {
			res = domain.GuardResult{Guard: circuitGuard, Reason: "circuit half-open, probe in flight for " + key}
			break
		}
		c.probing = true
		res.Allowed = true
	}
	to := c.state
	cb.mu.Unlock()

	cb.notify(key, from, to)
	return res
}

// RecordSuccess closes the circuit and clears its failure count.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	c, ok := cb.circuits[key]
	if !ok {
		cb.mu.Unlock()
		return
	}
	from := c.state
	c.state, c.failures, c.probing = CircuitClosed, 0, false
	cb.mu.Unlock()

	cb.notify(key, from, CircuitClosed)
}

// RecordFailure counts a failure. A failed probe reopens the circuit
// immediately.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	c := cb.get(key)
	from := c.state
	c.failures++
	c.probing = false
	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
		c.openedAt = cb.now()
	}
	to := c.state
	cb.mu.Unlock()

	cb.notify(key, from, to)
}

// State returns the current state for key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[key]; ok {
		return c.state
	}
	return CircuitClosed
}

// release frees a half-open probe slot without judging the downstream.
func (cb *CircuitBreaker) release(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[key]; ok {
		c.probing = false
	}
}

func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{}
		cb.circuits[key] = c
	}
	return c
}

func (cb *CircuitBreaker) notify(key string, from, to CircuitState) {
	if from != to && cb.OnStateChange != nil {
		cb.OnStateChange(key, from, to)
	}
}
