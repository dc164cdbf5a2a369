package loadbalance

import (
	"math/rand"

	"github.com/udduke/ribbon/discovery"
)

// WeightedRandomRule picks instances with probability proportional to their
// Weight. Instances with no weight set still get a share of one.
type WeightedRandomRule struct{}

// Pick draws a random point in [0, totalWeight) and returns the instance
// whose weight band covers it. The affinity key is ignored.
func (r *WeightedRandomRule) Pick(_ string, instances []discovery.ServiceInstance) (*discovery.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	total := 0
	for _, instance := range instances {
		total += weightOf(instance)
	}

	n := rand.Intn(total)
	for i := range instances {
		n -= weightOf(instances[i])
		if n < 0 {
			return &instances[i], nil
		}
	}
	// Unreachable: the bands cover [0, total).
	return &instances[len(instances)-1], nil
}

func (r *WeightedRandomRule) Name() string {
	return "WeightedRandom"
}

func weightOf(instance discovery.ServiceInstance) int {
	if instance.Weight <= 0 {
		return 1
	}
	return instance.Weight
}
