// Package circuitbreaker provides a three-state circuit breaker for outbound
// fetch targets. It isolates failing upstream sources: after a run of
// consecutive failures the circuit opens and callers fail fast without
// touching the network, until a reset timeout admits a trial request.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bioterminal/internal/clock"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and work executes normally.
	StateClosed State = iota

	// StateOpen indicates the circuit is open due to excessive failures.
	// While open, Execute rejects calls immediately with ErrOpen until the
	// reset timeout elapses.
	StateOpen

	// StateHalfOpen indicates the circuit is testing recovery. A single
	// trial call is admitted; the first failure reopens the circuit.
	StateHalfOpen
)

// String returns a string representation of the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute when the circuit rejects a call without
// invoking the wrapped work. Callers can test for it with errors.Is and
// choose to serve stale data instead.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds configuration for a circuit breaker.
type Config struct {
	// Name identifies the protected target for logging and events.
	Name string

	// FailureThreshold is the number of consecutive failures in the closed
	// state required to open the circuit. Default: 5.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in the
	// half-open state required to close the circuit. Default: 2.
	SuccessThreshold int

	// ResetTimeout is the duration the circuit stays open before admitting
	// a trial request. Default: 30 seconds.
	ResetTimeout time.Duration

	// CallTimeout bounds a single wrapped call. A call exceeding it counts
	// as a failure. Zero disables the per-call timeout.
	CallTimeout time.Duration

	// Clock provides time abstraction for testing. Default: clock.System.
	Clock clock.Clock

	// OnStateChange is invoked synchronously at the point of transition,
	// after the breaker's lock is released. May be nil.
	OnStateChange func(name string, from, to State)
}

// transitionNote records a state change that happened under the lock, so the
// observer callback can run after the lock is released.
type transitionNote struct {
	from, to State
}

// CircuitBreaker guards a single upstream target. All state is mutated only
// through Execute and the manual Reset/ForceOpen overrides; concurrent
// callers are serialized on an internal mutex.
type CircuitBreaker struct {
	cfg Config

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	nextAttempt   time.Time
	trialInFlight bool

	totalRequests    uint64
	stateChangeCount uint64
}

// New creates a circuit breaker with the given configuration, applying
// defaults for zero-valued fields.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	return &CircuitBreaker{
		cfg:   cfg,
		state: StateClosed,
	}
}

// Execute runs work under circuit breaker protection.
//
// Behavior by state:
//   - Closed: work executes; consecutive failures up to the threshold open
//     the circuit.
//   - Open: if the reset timeout has not elapsed, Execute returns ErrOpen
//     without invoking work. Once it elapses the circuit transitions to
//     half-open and admits a single trial call.
//   - Half-open: a success counts toward closing; the first failure reopens
//     the circuit immediately. Concurrent calls beyond the trial window are
//     rejected with ErrOpen.
//
// A call exceeding Config.CallTimeout is treated as a failure and returns
// the deadline error, which remains distinguishable from ErrOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, work func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cb.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cb.cfg.CallTimeout)
	}
	err := work(callCtx)
	cancel()

	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

// admit decides whether a call may proceed, handling the open → half-open
// transition. It returns ErrOpen when the call must be rejected.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	var notes []transitionNote

	now := cb.cfg.Clock.Now()
	if cb.state == StateOpen {
		if now.Before(cb.nextAttempt) {
			cb.mu.Unlock()
			return fmt.Errorf("%s: %w", cb.cfg.Name, ErrOpen)
		}
		notes = cb.transition(StateHalfOpen, notes)
	}

	if cb.state == StateHalfOpen {
		if cb.trialInFlight {
			cb.mu.Unlock()
			cb.notify(notes)
			return fmt.Errorf("%s: trial in progress: %w", cb.cfg.Name, ErrOpen)
		}
		cb.trialInFlight = true
	}

	cb.totalRequests++
	cb.mu.Unlock()
	cb.notify(notes)
	return nil
}

// recordSuccess applies the success bookkeeping for the current state.
func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	var notes []transitionNote

	cb.failureCount = 0
	cb.successCount++
	cb.trialInFlight = false

	if cb.state == StateHalfOpen && cb.successCount >= cb.cfg.SuccessThreshold {
		notes = cb.transition(StateClosed, notes)
	}
	cb.mu.Unlock()
	cb.notify(notes)
}

// recordFailure applies the failure bookkeeping for the current state.
func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	var notes []transitionNote

	cb.failureCount++
	cb.successCount = 0
	cb.trialInFlight = false

	switch cb.state {
	case StateHalfOpen:
		notes = cb.open(notes)
	case StateClosed:
		if cb.failureCount >= cb.cfg.FailureThreshold {
			notes = cb.open(notes)
		}
	}
	cb.mu.Unlock()
	cb.notify(notes)
}

// open transitions to the open state and schedules the next trial.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) open(notes []transitionNote) []transitionNote {
	cb.nextAttempt = cb.cfg.Clock.Now().Add(cb.cfg.ResetTimeout)
	return cb.transition(StateOpen, notes)
}

// transition changes state and records the change for later notification.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) transition(to State, notes []transitionNote) []transitionNote {
	from := cb.state
	if from == to {
		return notes
	}
	cb.state = to
	cb.stateChangeCount++

	if to == StateHalfOpen {
		cb.successCount = 0
		cb.trialInFlight = false
	}

	return append(notes, transitionNote{from: from, to: to})
}

// notify logs and dispatches recorded transitions. Must be called without
// holding cb.mu.
func (cb *CircuitBreaker) notify(notes []transitionNote) {
	for _, n := range notes {
		slog.Warn("circuit breaker state changed",
			slog.String("circuit", cb.cfg.Name),
			slog.String("from", n.from.String()),
			slog.String("to", n.to.String()))

		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, n.from, n.to)
		}
	}
}

// State returns the current circuit state. A pending open → half-open
// transition is reported as half-open so callers observe the effective
// state, but the transition itself happens on the next Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && !cb.cfg.Clock.Now().Before(cb.nextAttempt) {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the circuit back to closed and clears all counters.
// This is an operational override for manual intervention.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failureCount = 0
	cb.successCount = 0
	cb.trialInFlight = false
	notes := cb.transition(StateClosed, nil)
	cb.mu.Unlock()
	cb.notify(notes)
}

// ForceOpen forces the circuit open for one full reset timeout.
// This is an operational override for taking a target out of rotation.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	notes := cb.open(nil)
	cb.mu.Unlock()
	cb.notify(notes)
}

// Stats is a point-in-time snapshot of breaker counters.
type Stats struct {
	State            State
	FailureCount     int
	SuccessCount     int
	TotalRequests    uint64
	StateChangeCount uint64
	NextAttempt      time.Time
}

// Stats returns current breaker statistics for health reporting.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:            cb.state,
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		TotalRequests:    cb.totalRequests,
		StateChangeCount: cb.stateChangeCount,
		NextAttempt:      cb.nextAttempt,
	}
}
