package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"github.com/udduke/ribbon/discovery"
)

// ConsistentHashRule maps affinity keys onto a hash ring so the same key
// keeps hitting the same instance until the instance set changes. Useful for
// stateful services and local caches.
//
// Each instance occupies many virtual nodes on the ring; without them a
// handful of instances clusters unevenly and load skews. 100 replicas per
// instance gives statistical uniformity.
//
// The rule rebuilds its ring lazily whenever Pick observes a different
// instance set than the one the ring was built from.
type ConsistentHashRule struct {
	replicas int

	mu          sync.Mutex
	fingerprint string // addresses the current ring was built from
	ring        []uint32
	nodes       map[uint32]discovery.ServiceInstance
}

// NewConsistentHashRule creates a ring with 100 virtual nodes per instance.
func NewConsistentHashRule() *ConsistentHashRule {
	return &ConsistentHashRule{replicas: 100}
}

// Pick hashes key onto the ring and returns the owning instance: the first
// ring node clockwise from the key's hash, wrapping to the start of the ring
// past the end.
func (r *ConsistentHashRule) Pick(key string, instances []discovery.ServiceInstance) (*discovery.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildIfChanged(instances)

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(r.ring), func(i int) bool {
		return r.ring[i] >= hash
	})
	if idx == len(r.ring) {
		idx = 0
	}
	instance := r.nodes[r.ring[idx]]
	return &instance, nil
}

func (r *ConsistentHashRule) Name() string {
	return "ConsistentHash"
}

func (r *ConsistentHashRule) rebuildIfChanged(instances []discovery.ServiceInstance) {
	addrs := make([]string, len(instances))
	for i, instance := range instances {
		addrs[i] = instance.Addr
	}
	sort.Strings(addrs)
	fp := strings.Join(addrs, ",")
	if fp == r.fingerprint {
		return
	}

	r.fingerprint = fp
	r.ring = r.ring[:0]
	r.nodes = make(map[uint32]discovery.ServiceInstance, len(instances)*r.replicas)
	for _, instance := range instances {
		for i := 0; i < r.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
			r.ring = append(r.ring, hash)
			r.nodes[hash] = instance
		}
	}
	sort.Slice(r.ring, func(i, j int) bool { return r.ring[i] < r.ring[j] })
}
