package discovery

import (
	"fmt"
	"sync"
)

// StaticDiscovery serves a fixed instance list, typically taken from the
// "servers" config key. Register/Deregister mutate the in-memory list only,
// which keeps Watch useful in tests and simple deployments.
type StaticDiscovery struct {
	mu        sync.RWMutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

// NewStaticDiscovery creates a source preloaded with the given addresses for
// every service name it is asked about. Weight defaults to 1.
func NewStaticDiscovery(addrs []string) *StaticDiscovery {
	instances := make([]ServiceInstance, 0, len(addrs))
	for _, addr := range addrs {
		instances = append(instances, ServiceInstance{Addr: addr, Weight: 1})
	}
	return &StaticDiscovery{
		instances: map[string][]ServiceInstance{"": instances},
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

// Register appends the instance to the service's list. The ttl is ignored;
// static entries never expire.
func (d *StaticDiscovery) Register(serviceName string, instance ServiceInstance, _ int64) error {
	d.mu.Lock()
	for _, existing := range d.instances[serviceName] {
		if existing.Addr == instance.Addr {
			d.mu.Unlock()
			return fmt.Errorf("discovery: instance %s already registered for %q", instance.Addr, serviceName)
		}
	}
	d.instances[serviceName] = append(d.instances[serviceName], instance)
	d.mu.Unlock()

	d.notify(serviceName)
	return nil
}

// Deregister removes the instance with the given address.
func (d *StaticDiscovery) Deregister(serviceName string, addr string) error {
	d.mu.Lock()
	list := d.instances[serviceName]
	kept := list[:0]
	for _, instance := range list {
		if instance.Addr != addr {
			kept = append(kept, instance)
		}
	}
	d.instances[serviceName] = kept
	d.mu.Unlock()

	d.notify(serviceName)
	return nil
}

// Instances returns the list for serviceName, falling back to the preloaded
// default list when the name has no entries of its own.
func (d *StaticDiscovery) Instances(serviceName string) ([]ServiceInstance, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list, ok := d.instances[serviceName]
	if !ok || len(list) == 0 {
		list = d.instances[""]
	}
	out := make([]ServiceInstance, len(list))
	copy(out, list)
	return out, nil
}

// Watch emits the updated list after every Register/Deregister for the name.
func (d *StaticDiscovery) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	d.mu.Lock()
	d.watchers[serviceName] = append(d.watchers[serviceName], ch)
	d.mu.Unlock()
	return ch
}

func (d *StaticDiscovery) notify(serviceName string) {
	instances, _ := d.Instances(serviceName)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.watchers[serviceName] {
		select {
		case ch <- instances:
		default: // watcher is behind; it will re-observe on the next change
		}
	}
}
