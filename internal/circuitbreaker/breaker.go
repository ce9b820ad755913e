package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Forwarding normally
	StateOpen                  // Rejecting without dialing
	StateHalfOpen              // One probe in flight
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

// Breaker tracks consecutive transport failures of one upstream destination.
type Breaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	probing          bool
	failureThreshold int
	resetTimeout     time.Duration
}

func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
	}
}

// Allow reports whether a request may be sent. After the reset timeout an
// open breaker admits exactly one probe; the rest are refused until the
// probe reports back.
func (b *Breaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.resetTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) RecordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures++
	b.probing = false

	if b.state == StateHalfOpen || b.failures >= b.failureThreshold {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

func (b *Breaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures = 0
	b.probing = false
	b.state = StateClosed
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}
