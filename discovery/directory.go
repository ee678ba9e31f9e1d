// Package discovery maps service names to reachable addresses.
//
// Servers Publish each registered service under their advertise address;
// clients Resolve a service name to one address when they are given a
// symbolic destination instead of host:port.
package discovery

import (
	"context"
	"errors"
)

// ErrNoInstances is returned by Resolve when nothing is published under the name.
var ErrNoInstances = errors.New("discovery: no instances available")

// ServiceInstance is one published endpoint of a service.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version,omitempty"`
}

// Directory is a name-to-address lookup and registration service.
type Directory interface {
	Resolve(ctx context.Context, serviceName string) (string, error)
	Publish(ctx context.Context, serviceName, addr string) error
	Unpublish(ctx context.Context, serviceName, addr string) error
}

// Picker chooses one instance out of the published set.
// loadbalance.Balancer implementations satisfy it.
type Picker interface {
	Pick(instances []ServiceInstance) (*ServiceInstance, error)
}

// DefaultWeight is assigned to instances published without an explicit weight.
const DefaultWeight = 10

func pick(p Picker, instances []ServiceInstance) (string, error) {
	if len(instances) == 0 {
		return "", ErrNoInstances
	}
	if p == nil {
		return instances[0].Addr, nil
	}
	inst, err := p.Pick(instances)
	if err != nil {
		return "", err
	}
	return inst.Addr, nil
}
