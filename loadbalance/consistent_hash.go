package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"dmonitor/discovery"
)

// ConsistentHashBalancer maps keys to instances using a hash ring.
// The same key always maps to the same instance until the ring changes; as a
// Balancer it always hashes the key it was built with, typically the local
// host name.
//
// Each real instance owns replicas virtual nodes hashed from "{addr}#{i}", so
// a handful of instances still spread evenly around the ring.
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu      sync.Mutex
	members string                                // sorted addrs the ring was built from
	ring    []uint32                              // sorted hash values on the ring
	nodes   map[uint32]*discovery.ServiceInstance // hash value → instance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: 100,
		nodes:    make(map[uint32]*discovery.ServiceInstance),
	}
}

// Add places an instance onto the hash ring.
func (b *ConsistentHashBalancer) Add(instance *discovery.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(instance)
}

func (b *ConsistentHashBalancer) add(instance *discovery.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	// Keep the ring sorted for binary search in PickKey()
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// PickKey finds the instance responsible for key: the first node clockwise
// from the key's hash, wrapping around to the start of the ring.
func (b *ConsistentHashBalancer) PickKey(key string) (*discovery.ServiceInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pickKey(key)
}

func (b *ConsistentHashBalancer) pickKey(key string) (*discovery.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, discovery.ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

// Pick rebuilds the ring when the instance set changed and returns the
// instance owning the balancer's key.
func (b *ConsistentHashBalancer) Pick(instances []discovery.ServiceInstance) (*discovery.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, discovery.ErrNoInstances
	}

	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	members := strings.Join(addrs, ",")

	b.mu.Lock()
	defer b.mu.Unlock()
	if members != b.members {
		b.ring = b.ring[:0]
		b.nodes = make(map[uint32]*discovery.ServiceInstance)
		for i := range instances {
			inst := instances[i]
			b.add(&inst)
		}
		b.members = members
	}
	return b.pickKey(b.key)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
