package strategy

import (
	"github.com/angeloszaimis/hostproxy/internal/routing"
)

const (
	First          = "first"
	RoundRobin     = "round-robin"
	Random         = "random"
	ConsistentHash = "consistent_hash"
)

// Strategy picks one server address out of a backend's pool. It returns an
// empty string when the pool has no servers. key identifies the client and
// is ignored by strategies without affinity.
type Strategy interface {
	Select(backend *routing.Backend, key string) string
}
