// Package client defines the client handle the provisioning factory hands
// out, the load-balancer-aware capability, and RPCClient, the default
// pluggable client implementation.
package client

import (
	"context"

	"github.com/udduke/ribbon/loadbalance"
)

// Client is the opaque handle to a constructed network client. The factory
// caches exactly one per client name for the life of the process.
type Client interface {
	// Call invokes serviceMethod ("Service.Method") with args and
	// unmarshals the reply into reply.
	Call(ctx context.Context, serviceMethod string, args, reply any) error

	// Close releases the client's connections.
	Close() error
}

// LoadBalancerAware is the capability a client implementation declares when
// it can route calls through a load balancer. The factory binds the
// provisioned balancer into such clients right after construction; once set,
// the balancer is never replaced.
type LoadBalancerAware interface {
	SetLoadBalancer(lb loadbalance.Balancer)
	LoadBalancer() loadbalance.Balancer
}
