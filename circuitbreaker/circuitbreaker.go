package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // provider is queried normally
	StateOpen                  // provider is skipped
	StateHalfOpen              // one probe lookup is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration
type Config struct {
	Name            string        // provider name, used in logs
	Threshold       int           // consecutive transient failures before opening
	Cooldown        time.Duration // how long to skip the provider
	HalfOpenTimeout time.Duration // how long a probe may take before reopening

	// OnStateChange is called after every transition, outside the breaker lock
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker stops a resolver from hammering a provider that keeps failing
// transiently. Confirmed "not found" answers count as success: the provider is
// healthy, it just has nothing for that track.
type CircuitBreaker struct {
	name            string
	threshold       int
	cooldown        time.Duration
	halfOpenTimeout time.Duration
	onStateChange   func(name string, from, to State)
	now             func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	halfOpenStart time.Time
}

// Status is a point-in-time view of a breaker
type Status struct {
	Name           string        `json:"name"`
	State          State         `json:"state"`
	Failures       int           `json:"failures"`
	Threshold      int           `json:"threshold"`
	TimeUntilRetry time.Duration `json:"-"`
	RetryInSeconds float64       `json:"retry_in_seconds,omitempty"`
}

type transition struct {
	from, to State
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	if cfg.HalfOpenTimeout <= 0 {
		cfg.HalfOpenTimeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	return &CircuitBreaker{
		name:            cfg.Name,
		threshold:       cfg.Threshold,
		cooldown:        cfg.Cooldown,
		halfOpenTimeout: cfg.HalfOpenTimeout,
		onStateChange:   cfg.OnStateChange,
		now:             time.Now,
		state:           StateClosed,
	}
}

// Name returns the provider name the breaker guards
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow reports whether the provider may be queried now. After the cooldown the
// first caller is let through as a probe; others are refused until it reports back.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	var tr *transition
	allowed := true

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cooldown {
			tr = cb.setState(StateHalfOpen)
			cb.halfOpenStart = cb.now()
			log.Infof("%s Cooldown passed, probing provider", logcolors.CircuitBreakerPrefix(cb.name))
		} else {
			allowed = false
		}

	case StateHalfOpen:
		if cb.now().Sub(cb.halfOpenStart) >= cb.halfOpenTimeout {
			tr = cb.setState(StateOpen)
			cb.openedAt = cb.now()
			log.Warnf("%s Probe timed out, back to OPEN", logcolors.CircuitBreakerPrefix(cb.name))
		}
		allowed = false
	}
	cb.mu.Unlock()

	cb.notify(tr)
	return allowed
}

// RecordSuccess records a lookup that reached a definitive answer
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var tr *transition
	if cb.state == StateHalfOpen {
		tr = cb.setState(StateClosed)
		log.Infof("%s Probe succeeded, transitioning to CLOSED", logcolors.CircuitBreakerPrefix(cb.name))
	}
	cb.failures = 0
	cb.mu.Unlock()

	cb.notify(tr)
}

// RecordFailure records a transient failure
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var tr *transition
	cb.failures++

	switch cb.state {
	case StateHalfOpen:
		tr = cb.setState(StateOpen)
		cb.openedAt = cb.now()
		log.Warnf("%s Probe failed, back to OPEN", logcolors.CircuitBreakerPrefix(cb.name))

	case StateClosed:
		if cb.failures >= cb.threshold {
			tr = cb.setState(StateOpen)
			cb.openedAt = cb.now()
			log.Warnf("%s Threshold reached (%d failures), transitioning to OPEN (cooldown: %v)",
				logcolors.CircuitBreakerPrefix(cb.name), cb.failures, cb.cooldown)
		}
	}
	cb.mu.Unlock()

	cb.notify(tr)
}

// Reset manually closes the breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	tr := cb.setState(StateClosed)
	cb.failures = 0
	cb.openedAt = time.Time{}
	cb.halfOpenStart = time.Time{}
	cb.mu.Unlock()

	log.Infof("%s Manually reset to CLOSED", logcolors.CircuitBreakerPrefix(cb.name))
	cb.notify(tr)
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// IsOpen returns true if the provider is being skipped
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// TimeUntilRetry returns the remaining cooldown (OPEN) or probe timeout
// (HALF-OPEN); zero when closed.
func (cb *CircuitBreaker) TimeUntilRetry() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.timeUntilRetry()
}

// Status returns a snapshot for diagnostics endpoints
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	retry := cb.timeUntilRetry()
	return Status{
		Name:           cb.name,
		State:          cb.state,
		Failures:       cb.failures,
		Threshold:      cb.threshold,
		TimeUntilRetry: retry,
		RetryInSeconds: retry.Seconds(),
	}
}

func (cb *CircuitBreaker) timeUntilRetry() time.Duration {
	var remaining time.Duration
	switch cb.state {
	case StateOpen:
		remaining = cb.cooldown - cb.now().Sub(cb.openedAt)
	case StateHalfOpen:
		remaining = cb.halfOpenTimeout - cb.now().Sub(cb.halfOpenStart)
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(to State) *transition {
	from := cb.state
	cb.state = to
	if from == to {
		return nil
	}
	return &transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(tr *transition) {
	if tr == nil || cb.onStateChange == nil {
		return
	}
	cb.onStateChange(cb.name, tr.from, tr.to)
}
