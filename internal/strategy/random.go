package strategy

import (
	"math/rand/v2"

	"github.com/angeloszaimis/hostproxy/internal/routing"
)

type randomStrategy struct{}

func (r *randomStrategy) Select(backend *routing.Backend, _ string) string {
	if backend == nil || len(backend.Servers) == 0 {
		return ""
	}

	index := rand.IntN(len(backend.Servers))
	return backend.Servers[index]
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
