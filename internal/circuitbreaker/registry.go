package circuitbreaker

import (
	"sync"
	"time"
)

// Registry holds one Breaker per upstream destination. A Registry with a
// threshold below 1 is disabled: it allows everything and records nothing.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*Breaker
	threshold int
	timeout   time.Duration
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		timeout:   timeout,
	}
}

func (r *Registry) Enabled() bool {
	return r != nil && r.threshold > 0
}

func (r *Registry) Breaker(destination string) *Breaker {
	r.mutex.RLock()
	b, exists := r.breakers[destination]
	r.mutex.RUnlock()

	if exists {
		return b
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if b, exists = r.breakers[destination]; exists {
		return b
	}

	b = NewBreaker(r.threshold, r.timeout)
	r.breakers[destination] = b
	return b
}

func (r *Registry) Allow(destination string) bool {
	if !r.Enabled() {
		return true
	}
	return r.Breaker(destination).Allow()
}

// Record feeds the outcome of a forwarding attempt. Only transport errors
// count as failures; any upstream response, whatever its status, is a success.
func (r *Registry) Record(destination string, err error) {
	if !r.Enabled() {
		return
	}

	b := r.Breaker(destination)
	if err != nil {
		b.RecordFailure()
		return
	}
	b.RecordSuccess()
}

// Retain forgets breakers for destinations no longer routed to.
func (r *Registry) Retain(destinations []string) {
	if !r.Enabled() {
		return
	}

	keep := make(map[string]struct{}, len(destinations))
	for _, d := range destinations {
		keep[d] = struct{}{}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for d := range r.breakers {
		if _, ok := keep[d]; !ok {
			delete(r.breakers, d)
		}
	}
}

func (r *Registry) States() map[string]string {
	if !r.Enabled() {
		return nil
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	states := make(map[string]string, len(r.breakers))
	for d, b := range r.breakers {
		states[d] = b.State().String()
	}
	return states
}
