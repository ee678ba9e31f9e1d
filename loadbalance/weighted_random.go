package loadbalance

import (
	"math/rand/v2"

	"dmonitor/discovery"
)

// WeightedRandomBalancer picks instances with probability proportional to
// their weight. Instances without a positive weight count as DefaultWeight.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []discovery.ServiceInstance) (*discovery.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, discovery.ErrNoInstances
	}

	total := 0
	for _, inst := range instances {
		total += weightOf(inst)
	}

	r := rand.IntN(total)
	for i := range instances {
		r -= weightOf(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weightOf(inst discovery.ServiceInstance) int {
	if inst.Weight <= 0 {
		return discovery.DefaultWeight
	}
	return inst.Weight
}
