package clients

import (
	"errors"
	"sync"
	"time"

	"github.com/jsamuelsen/quote-sync/internal/platform/config"
)

// ErrCircuitOpen is returned without calling the downstream while the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the position of a client's circuit.
type State int

// Circuit states. A closed circuit passes every call; an open one rejects calls
// until its cooldown ends; a half-open one admits a few probe calls.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// breaker counts whole Do calls, not individual retry attempts, so one sync
// run against a dead source costs at most one failure per fetch.
type breaker struct {
	maxFailures int
	cooldown    time.Duration
	probeLimit  int
	now         func() time.Time
	notify      func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	passed   int
	openedAt time.Time
}

func newBreaker(cfg config.CircuitBreakerConfig, notify func(from, to State)) *breaker {
	return &breaker{
		maxFailures: max(cfg.MaxFailures, 1),
		cooldown:    cfg.Timeout,
		probeLimit:  max(cfg.HalfOpenLimit, 1),
		now:         time.Now,
		notify:      notify,
	}
}

// acquire admits a call or returns ErrCircuitOpen. Every admitted call must be
// followed by exactly one release.
func (b *breaker) acquire() error {
	b.mu.Lock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		from := b.moveLocked(StateHalfOpen)
		defer b.announce(from, StateHalfOpen)
	}

	var err error

	switch b.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.probes >= b.probeLimit {
			err = ErrCircuitOpen
		} else {
			b.probes++
		}
	}

	b.mu.Unlock()

	return err
}

// release reports the outcome of an admitted call.
func (b *breaker) release(failed bool) {
	b.mu.Lock()

	from, to := b.state, b.state

	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			break
		}

		b.failures++
		if b.failures >= b.maxFailures {
			to = StateOpen
		}
	case StateHalfOpen:
		b.probes = max(b.probes-1, 0)

		switch {
		case failed:
			to = StateOpen
		case b.passed+1 >= b.probeLimit:
			to = StateClosed
		default:
			b.passed++
		}
	}

	if to != from {
		b.moveLocked(to)
	}

	b.mu.Unlock()

	if to != from {
		b.announce(from, to)
	}
}

func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// moveLocked switches state and resets the counters. b.mu must be held.
func (b *breaker) moveLocked(to State) State {
	from := b.state
	b.state = to
	b.failures = 0
	b.passed = 0

	if to == StateOpen {
		b.openedAt = b.now()
		b.probes = 0
	}

	return from
}

func (b *breaker) announce(from, to State) {
	if b.notify != nil {
		b.notify(from, to)
	}
}
