package discovery

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// StaticDirectory is an in-process Directory. It serves single-host
// deployments without etcd and tests.
type StaticDirectory struct {
	mu        sync.RWMutex
	instances map[string][]ServiceInstance
	picker    Picker
}

// NewStaticDirectory creates an empty directory. picker may be nil, in which
// case Resolve returns the first published address.
func NewStaticDirectory(picker Picker) *StaticDirectory {
	return &StaticDirectory{
		instances: make(map[string][]ServiceInstance),
		picker:    picker,
	}
}

func (d *StaticDirectory) Publish(_ context.Context, serviceName, addr string) error {
	if serviceName == "" || addr == "" {
		return fmt.Errorf("discovery: publish requires a service name and an address")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.instances[serviceName]
	if slices.ContainsFunc(list, func(inst ServiceInstance) bool { return inst.Addr == addr }) {
		return nil
	}
	d.instances[serviceName] = append(list, ServiceInstance{Addr: addr, Weight: DefaultWeight})
	return nil
}

func (d *StaticDirectory) Unpublish(_ context.Context, serviceName, addr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.instances[serviceName] = slices.DeleteFunc(d.instances[serviceName], func(inst ServiceInstance) bool {
		return inst.Addr == addr
	})
	if len(d.instances[serviceName]) == 0 {
		delete(d.instances, serviceName)
	}
	return nil
}

func (d *StaticDirectory) Resolve(_ context.Context, serviceName string) (string, error) {
	d.mu.RLock()
	list := slices.Clone(d.instances[serviceName])
	d.mu.RUnlock()

	addr, err := pick(d.picker, list)
	if err != nil {
		return "", fmt.Errorf("discovery: resolve %s: %w", serviceName, err)
	}
	return addr, nil
}
