// Package loadbalance provides server selection for named clients: pluggable
// selection rules over a discovery-backed server list.
package loadbalance

import (
	"errors"
	"fmt"

	"github.com/udduke/ribbon/discovery"
)

// ErrNoInstances is returned when selection runs against an empty server
// list.
var ErrNoInstances = errors.New("loadbalance: no instances available")

// Rule selects one instance out of the current server list. key carries
// affinity information for rules that use it; list-order rules ignore it.
type Rule interface {
	Pick(key string, instances []discovery.ServiceInstance) (*discovery.ServiceInstance, error)
	Name() string
}

// RuleFromName maps the "loadbalancer.rule" config value to a Rule.
func RuleFromName(name string) (Rule, error) {
	switch name {
	case "roundrobin":
		return &RoundRobinRule{}, nil
	case "weighted":
		return &WeightedRandomRule{}, nil
	case "hash":
		return NewConsistentHashRule(), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown rule %q", name)
	}
}
