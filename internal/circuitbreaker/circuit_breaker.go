// Package circuitbreaker stops calling a failing dependency for a cool-down
// period and probes it with a few trial calls before resuming.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

var (
	// ErrCircuitOpen is returned while the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open probe slot is taken
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxFailures is both the minimum sample before the failure rate is
	// considered and the consecutive-failure trip count.
	MaxFailures      int
	FailureThreshold float64 // failure rate in [0,1] that trips the breaker
	Timeout          time.Duration
	HalfOpenMaxCalls int
	// OnStateChange, when set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      10,
		FailureThreshold: 0.5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// NewChainConfig returns the configuration used for Solana RPC calls
func NewChainConfig(maxFailures int, timeout time.Duration) *Config {
	cfg := DefaultConfig("solana_rpc")
	if maxFailures > 0 {
		cfg.MaxFailures = maxFailures
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return cfg
}

// CircuitBreaker guards calls to one dependency
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	totalCalls       int
	consecutiveFails int
	probesInFlight   int
	lastFailureTime  time.Time
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	cfg := *config
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}
	cb := &CircuitBreaker{cfg: cfg, now: time.Now, state: StateClosed}
	cb.lastStateChange = cb.now()
	return cb
}

// Execute runs fn unless the breaker is open. Cancellation by the caller is
// not counted as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	err = fn()
	cb.afterRequest(probe, err)
	return err
}

type transition struct{ from, to State }

// beforeRequest admits or refuses a call. probe reports whether the call
// holds one of the half-open slots.
func (cb *CircuitBreaker) beforeRequest() (probe bool, err error) {
	cb.mu.Lock()
	var changed *transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(changed)
	}()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.cfg.Timeout {
			return false, ErrCircuitOpen
		}
		changed = cb.setState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.probesInFlight+cb.successes >= cb.cfg.HalfOpenMaxCalls {
			return false, ErrTooManyRequests
		}
		cb.probesInFlight++
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) afterRequest(probe bool, err error) {
	cb.mu.Lock()
	var changed *transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(changed)
	}()

	if probe && cb.probesInFlight > 0 {
		cb.probesInFlight--
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	// a probe admitted before a reopen must not count against the new period
	if probe && cb.state != StateHalfOpen {
		return
	}

	cb.totalCalls++
	if err == nil {
		cb.successes++
		cb.consecutiveFails = 0
		if cb.state == StateHalfOpen && cb.successes >= cb.cfg.HalfOpenMaxCalls {
			changed = cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	cb.consecutiveFails++
	cb.lastFailureTime = cb.now()
	switch cb.state {
	case StateClosed:
		if cb.shouldOpen() {
			changed = cb.setState(StateOpen)
		}
	case StateHalfOpen:
		changed = cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFails >= cb.cfg.MaxFailures {
		return true
	}
	return cb.totalCalls >= cb.cfg.MaxFailures && cb.failureRate() >= cb.cfg.FailureThreshold
}

func (cb *CircuitBreaker) failureRate() float64 {
	if cb.totalCalls == 0 {
		return 0
	}
	return float64(cb.failures) / float64(cb.totalCalls)
}

// setState moves to state with fresh counters. Callers hold mu.
func (cb *CircuitBreaker) setState(state State) *transition {
	from := cb.state
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.failures, cb.successes, cb.totalCalls, cb.consecutiveFails = 0, 0, 0, 0
	return &transition{from: from, to: state}
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t == nil || t.from == t.to {
		return
	}
	logger := logging.WithFields(map[string]interface{}{
		"circuitBreaker": cb.cfg.Name,
		"from":           t.from,
		"to":             t.to,
	})
	if t.to == StateOpen {
		logger.Warn("Circuit breaker opened")
	} else {
		logger.Info("Circuit breaker state changed")
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	TotalCalls       int       `json:"totalCalls"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	FailureRate      float64   `json:"failureRate"`
	LastFailureTime  time.Time `json:"lastFailureTime"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// GetStats returns statistics for the current state period
func (cb *CircuitBreaker) GetStats() *Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return &Stats{
		Name:             cb.cfg.Name,
		State:            cb.state,
		Failures:         cb.failures,
		Successes:        cb.successes,
		TotalCalls:       cb.totalCalls,
		ConsecutiveFails: cb.consecutiveFails,
		FailureRate:      cb.failureRate(),
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
	}
}

// Reset closes the breaker and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.setState(StateClosed)
	cb.probesInFlight = 0
	cb.mu.Unlock()
	cb.notify(changed)
}
