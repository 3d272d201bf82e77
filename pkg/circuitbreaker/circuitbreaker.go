// Package circuitbreaker stops calling a failing dependency for a cool-down
// period after a run of consecutive failures.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type Settings struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int
	// Timeout is how long the breaker stays open before letting one probe
	// call through.
	Timeout time.Duration
	// OnStateChange is called with the lock released.
	OnStateChange func(name string, from, to State)
}

type CircuitBreaker struct {
	name          string
	maxFailures   int
	timeout       time.Duration
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:          settings.Name,
		maxFailures:   settings.MaxFailures,
		timeout:       settings.Timeout,
		onStateChange: settings.OnStateChange,
		now:           time.Now,
		state:         StateClosed,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.timeout {
		return StateHalfOpen
	}
	return cb.state
}

// Execute runs fn unless the breaker is open. While half-open only one
// probe runs at a time; its outcome closes or re-opens the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	from, to, err := cb.before()
	cb.notify(from, to)
	if err != nil {
		return err
	}

	result := fn()

	from, to = cb.after(result)
	cb.notify(from, to)
	return result
}

func (cb *CircuitBreaker) before() (State, State, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from := cb.state
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			return from, from, ErrOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return from, cb.state, nil
	case StateHalfOpen:
		if cb.probing {
			return from, from, ErrOpen
		}
		cb.probing = true
	}
	return from, cb.state, nil
}

func (cb *CircuitBreaker) after(result error) (State, State) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from := cb.state
	cb.probing = false
	if result == nil {
		cb.failures = 0
		cb.state = StateClosed
		return from, cb.state
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
	return from, cb.state
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}
