// Package resilience provides retry and circuit breaker primitives for the
// network-calling collectors.
package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed passes calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls immediately.
	CircuitOpen
	// CircuitHalfOpen admits a single trial call.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Name identifies the protected resource in logs and errors.
	Name string

	// FailureThreshold is the weighted failure count that opens the
	// circuit. Default: 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a read of
	// its state reports half-open. Default: 60s.
	RecoveryTimeout time.Duration

	// RateLimitWeight is how much a rate-limit failure adds to the failure
	// count. Default: 2.
	RateLimitWeight int

	// OnStateChange is called when the circuit transitions between states.
	// It runs with the breaker's lock held and must not call back into it.
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the defaults used for remote services.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		RateLimitWeight:  2,
	}
}

// CircuitBreaker guards a single remote resource. State is recomputed lazily
// on access; there is no background timer.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	failures      int
	openedAt      time.Time
	probeInFlight bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.RateLimitWeight <= 0 {
		cfg.RateLimitWeight = 2
	}
	if cfg.Name == "" {
		cfg.Name = "circuit"
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Name returns the protected resource name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn through the breaker. While open it returns ErrCircuitOpen
// without invoking fn, and the rejection does not count as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.recordResult(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allowRequest(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	cb.recordResult(err)
	return val, err
}

// State returns the current state. Reading an open circuit whose recovery
// timeout has elapsed moves it to half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

// Reset forces the circuit back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probeInFlight = false
	cb.openedAt = time.Time{}
	cb.transition(CircuitClosed)
}

// Counters returns the weighted failure count and the current state.
func (cb *CircuitBreaker) Counters() (failures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.failures, cb.state
}

// refresh applies the lazy open to half-open transition. Caller holds mu.
func (cb *CircuitBreaker) refresh() {
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		cb.transition(CircuitHalfOpen)
	}
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()

	switch cb.state {
	case CircuitOpen:
		return eris.Wrapf(ErrCircuitOpen, "circuit %q", cb.cfg.Name)
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return eris.Wrapf(ErrCircuitOpen, "circuit %q: trial call in flight", cb.cfg.Name)
		}
		cb.probeInFlight = true
	}
	return nil
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false

	if err == nil {
		cb.failures = 0
		cb.transition(CircuitClosed)
		return
	}

	increment := 1
	if IsRateLimited(err) {
		increment = cb.cfg.RateLimitWeight
	}
	cb.failures += increment

	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.nowFunc()
		if cb.state != CircuitOpen {
			zap.L().Warn("circuit opened",
				zap.String("circuit", cb.cfg.Name),
				zap.Int("failures", cb.failures),
			)
		}
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// IsCircuitOpen reports whether err is a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// ServiceBreakers manages independent circuit breakers per resource, so one
// failing endpoint cannot starve another on the same service.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewServiceBreakers creates a registry of per-resource circuit breakers.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the circuit breaker for the named resource, creating one if needed.
func (sb *ServiceBreakers) Get(name string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[name]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if cb, ok = sb.breakers[name]; ok {
		return cb
	}
	cfg := sb.cfg
	cfg.Name = name
	cb = NewCircuitBreaker(cfg)
	sb.breakers[name] = cb
	return cb
}

// BreakerStatus is a point-in-time view of one breaker.
type BreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Snapshot returns the status of every registered breaker, sorted by name.
func (sb *ServiceBreakers) Snapshot() []BreakerStatus {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	out := make([]BreakerStatus, 0, len(sb.breakers))
	for name, cb := range sb.breakers {
		failures, state := cb.Counters()
		out = append(out, BreakerStatus{Name: name, State: state.String(), Failures: failures})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
