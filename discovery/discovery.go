// Package discovery tracks which server instances exist for a service.
//
// Two implementations are provided: EtcdDiscovery, backed by etcd with
// TTL leases and watch-based change notification, and StaticDiscovery, a
// fixed list taken from configuration. Load balancers consume either one
// through the Discovery interface.
package discovery

// ServiceInstance describes one addressable server for a service.
type ServiceInstance struct {
	Addr    string
	Weight  int // relative capacity, consumed by weighted selection rules
	Version string
}

// Discovery is the source of server instances for a service name.
type Discovery interface {
	// Register announces an instance. ttl is the lease duration in seconds
	// for implementations that expire entries; static sources may ignore it.
	Register(serviceName string, instance ServiceInstance, ttl int64) error

	// Deregister removes the instance with the given address.
	Deregister(serviceName string, addr string) error

	// Instances returns the current instance list for the service.
	Instances(serviceName string) ([]ServiceInstance, error)

	// Watch emits the full updated instance list whenever it changes.
	Watch(serviceName string) <-chan []ServiceInstance
}
