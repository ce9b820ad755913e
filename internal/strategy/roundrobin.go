package strategy

import (
	"sync"
	"sync/atomic"

	"github.com/angeloszaimis/hostproxy/internal/routing"
)

type roundRobinStrategy struct {
	counters sync.Map // backend name -> *atomic.Uint64
}

func (rb *roundRobinStrategy) Select(backend *routing.Backend, _ string) string {
	if backend == nil || len(backend.Servers) == 0 {
		return ""
	}

	val, _ := rb.counters.LoadOrStore(backend.Name, &atomic.Uint64{})
	n := val.(*atomic.Uint64).Add(1)

	index := (n - 1) % uint64(len(backend.Servers))

	return backend.Servers[index]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
