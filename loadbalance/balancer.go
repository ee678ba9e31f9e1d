// Package loadbalance picks one service instance out of those a discovery
// directory returns.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity centers
//   - WeightedRandom:  centers of different capacity
//   - ConsistentHash:  pins each collector to one center, so a host's history
//     is not split between centers
package loadbalance

import (
	"fmt"

	"dmonitor/discovery"
)

// Balancer is the interface for load balancing strategies.
// It satisfies discovery.Picker.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every resolve; must be goroutine-safe.
	Pick(instances []discovery.ServiceInstance) (*discovery.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name. key is the affinity key
// used by "consistent_hash" and ignored otherwise.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(key), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
