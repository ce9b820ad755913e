package strategy

import (
	"hash/crc32"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/angeloszaimis/hostproxy/internal/routing"
)

type consistentHashStrategy struct {
	virtualNodes int
	rings        sync.Map // backend name -> *ringSnapshot
}

type ringSnapshot struct {
	servers   []string
	positions []uint32
	owners    map[uint32]string
}

func buildRing(servers []string, vnodes int) *ringSnapshot {
	rs := &ringSnapshot{
		servers:   slices.Clone(servers),
		positions: make([]uint32, 0, len(servers)*vnodes),
		owners:    make(map[uint32]string),
	}

	for _, server := range servers {
		for i := 0; i < vnodes; i++ {
			key := server + "#" + strconv.Itoa(i)
			hash := crc32.ChecksumIEEE([]byte(key))

			rs.positions = append(rs.positions, hash)
			rs.owners[hash] = server
		}
	}

	sort.Slice(rs.positions, func(i, j int) bool { return rs.positions[i] < rs.positions[j] })
	return rs
}

func (r *ringSnapshot) lookup(hash uint32) string {
	if r == nil || len(r.positions) == 0 {
		return ""
	}

	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})

	if idx == len(r.positions) {
		idx = 0
	}

	return r.owners[r.positions[idx]]
}

func (s *consistentHashStrategy) Select(backend *routing.Backend, key string) string {
	if backend == nil || len(backend.Servers) == 0 {
		return ""
	}

	// A reload may change the servers behind a backend name.
	val, ok := s.rings.Load(backend.Name)
	rs, _ := val.(*ringSnapshot)
	if !ok || !slices.Equal(rs.servers, backend.Servers) {
		rs = buildRing(backend.Servers, s.virtualNodes)
		s.rings.Store(backend.Name, rs)
	}

	return rs.lookup(crc32.ChecksumIEEE([]byte(key)))
}

func NewConsistentHashStrategy(virtualNodes int) Strategy {
	if virtualNodes < 1 {
		virtualNodes = 1
	}

	return &consistentHashStrategy{
		virtualNodes: virtualNodes,
	}
}
