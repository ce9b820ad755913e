// Package strategy defines how a destination is chosen among the servers of
// a routed backend:
//
//   - First: the first server of the backend block (the default)
//   - Round Robin: sequential distribution, one counter per backend
//   - Random: uniform random choice
//   - Consistent Hash: client affinity over a hash ring with virtual nodes
//
// Strategies only see the servers listed in the routing file; there is no
// health or load information behind the choice.
package strategy
