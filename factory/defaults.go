package factory

import (
	"go.uber.org/zap"

	"github.com/udduke/ribbon/client"
	"github.com/udduke/ribbon/loadbalance"
)

// Implementation IDs of the built-in client and balancer, the defaults of
// the "client.impl" and "loadbalancer.impl" config keys.
const (
	ImplRPCClient       = "rpc"
	ImplDynamicBalancer = "dynamic"
)

// RegisterDefaults installs the library's built-in implementations. Both
// take the configuration-initializable path.
func RegisterDefaults(it *Instantiator, log *zap.Logger) {
	it.MustRegister(ImplRPCClient, Implementation{
		New: func() any {
			c := client.NewRPCClient()
			c.SetLogger(log)
			return c
		},
	})
	it.MustRegister(ImplDynamicBalancer, Implementation{
		New: func() any {
			b := loadbalance.NewDynamicBalancer()
			b.SetLogger(log)
			return b
		},
	})
}
