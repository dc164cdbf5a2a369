package loadbalance

import (
	"sync/atomic"

	"github.com/udduke/ribbon/discovery"
)

// RoundRobinRule walks the instance list in order. The atomic counter keeps
// Pick lock-free and evenly distributed under concurrency.
type RoundRobinRule struct {
	counter atomic.Int64
}

// Pick selects the next instance in rotation. The affinity key is ignored.
func (r *RoundRobinRule) Pick(_ string, instances []discovery.ServiceInstance) (*discovery.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	index := r.counter.Add(1) % int64(len(instances))
	return &instances[index], nil
}

func (r *RoundRobinRule) Name() string {
	return "RoundRobin"
}
