package strategy

import (
	"github.com/angeloszaimis/hostproxy/internal/routing"
)

type firstStrategy struct{}

// Select returns the first server declared in the backend block, which is
// the destination the routing file parser records.
func (f *firstStrategy) Select(backend *routing.Backend, _ string) string {
	if backend == nil || len(backend.Servers) == 0 {
		return ""
	}

	return backend.Servers[0]
}

func NewFirstStrategy() Strategy {
	return &firstStrategy{}
}
