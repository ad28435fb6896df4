// Package shardmgr implements the Shard Manager (spec §4.4): a lookup
// from shard number to a reachable RemoteClient handle, rebuilt wholesale
// whenever replica membership changes.
//
// Grounded on coordinator/internal/model/hashring.go for the node/
// virtual-node table shape, and storage-node/internal/service/gossip_service.go
// for how membership change events drive a table rebuild.
package shardmgr

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/bidscape/kvshard/internal/remote"
)

// Replica is one reachable peer serving a given shard.
type Replica struct {
	NodeID string
	Client remote.Client
}

// table is the immutable snapshot swapped in on every membership change.
type table struct {
	replicas map[int][]Replica
}

// Manager holds the current shard -> replica-set mapping and hands out
// a (randomly selected) client handle per shard on request. Replica
// selection is opaque per spec §4.4; this implementation picks uniformly
// at random among a shard's reachable replicas.
type Manager struct {
	current atomic.Pointer[table]
	rngMu   sync.Mutex
	rng     *rand.Rand
}

// New builds an empty Manager; call Update to populate it once replica
// discovery (gossip) produces a membership view.
func New() *Manager {
	m := &Manager{rng: rand.New(rand.NewSource(1))}
	m.current.Store(&table{replicas: map[int][]Replica{}})
	return m
}

// Update atomically swaps in a new shard -> replica-set mapping. Callers
// (the membership package) pass the full table on every membership
// change; there is no incremental merge.
func (m *Manager) Update(replicas map[int][]Replica) {
	snapshot := make(map[int][]Replica, len(replicas))
	for shard, rs := range replicas {
		cp := make([]Replica, len(rs))
		copy(cp, rs)
		snapshot[shard] = cp
	}
	m.current.Store(&table{replicas: snapshot})
}

// Get returns a handle for shardNum, or nil if the shard has no reachable
// replica (spec §4.4).
func (m *Manager) Get(shardNum int) remote.Client {
	t := m.current.Load()
	rs := t.replicas[shardNum]
	if len(rs) == 0 {
		return nil
	}

	m.rngMu.Lock()
	idx := m.rng.Intn(len(rs))
	m.rngMu.Unlock()

	return rs[idx].Client
}

// Shards returns the shard numbers currently known to have at least one
// reachable replica.
func (m *Manager) Shards() []int {
	t := m.current.Load()
	out := make([]int, 0, len(t.replicas))
	for shard, rs := range t.replicas {
		if len(rs) > 0 {
			out = append(out, shard)
		}
	}
	return out
}
