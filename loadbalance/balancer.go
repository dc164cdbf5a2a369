package loadbalance

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/udduke/ribbon/config"
	"github.com/udduke/ribbon/discovery"
)

// Balancer is the handle the provisioning factory constructs, caches per
// client name, and binds into load-balancer-aware clients.
type Balancer interface {
	// ChooseServer picks the target instance for one call. key carries
	// affinity information for rules that use it.
	ChooseServer(key string) (*discovery.ServiceInstance, error)

	// Servers returns the current server snapshot.
	Servers() []discovery.ServiceInstance

	Name() string
}

// DynamicBalancer is the default Balancer implementation. It is built with
// no arguments and initialized from configuration (the preferred
// construction path), wiring together:
//
//   - a selection Rule ("loadbalancer.rule")
//   - a discovery source: etcd when "etcd.endpoints" is set, otherwise the
//     static "servers" list
//
// After initialization a background goroutine follows discovery watch events
// and swaps the server snapshot, so ChooseServer always picks from a current
// list without touching the discovery source on the call path.
type DynamicBalancer struct {
	mu       sync.RWMutex
	servers  []discovery.ServiceInstance
	rule     Rule
	source   discovery.Discovery
	service  string
	log      *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewDynamicBalancer creates an uninitialized balancer. InitWithConfig must
// run before ChooseServer; the factory guarantees that ordering.
func NewDynamicBalancer() *DynamicBalancer {
	return &DynamicBalancer{
		log:  zap.NewNop(),
		stop: make(chan struct{}),
	}
}

// SetLogger replaces the no-op logger. Call before InitWithConfig.
func (b *DynamicBalancer) SetLogger(log *zap.Logger) {
	if log != nil {
		b.log = log
	}
}

// InitWithConfig wires the rule and the discovery source from cfg, takes the
// first server snapshot, and starts watching for changes.
func (b *DynamicBalancer) InitWithConfig(cfg config.ClientConfig) error {
	rule, err := RuleFromName(config.String(cfg, config.KeyBalancerRule, "roundrobin"))
	if err != nil {
		return err
	}

	var source discovery.Discovery
	if endpoints := config.Strings(cfg, config.KeyEtcdEndpoints, nil); len(endpoints) > 0 {
		source, err = discovery.NewEtcdDiscovery(endpoints)
		if err != nil {
			return fmt.Errorf("loadbalance: etcd discovery: %w", err)
		}
	} else {
		source = discovery.NewStaticDiscovery(config.Strings(cfg, config.KeyServers, nil))
	}

	servers, err := source.Instances(cfg.Name())
	if err != nil {
		return fmt.Errorf("loadbalance: initial server list for %q: %w", cfg.Name(), err)
	}

	b.mu.Lock()
	b.rule = rule
	b.source = source
	b.service = cfg.Name()
	b.servers = servers
	b.mu.Unlock()

	go b.watch()
	return nil
}

// watch applies discovery updates to the server snapshot until Close.
func (b *DynamicBalancer) watch() {
	updates := b.source.Watch(b.service)
	for {
		select {
		case servers := <-updates:
			b.mu.Lock()
			b.servers = servers
			b.mu.Unlock()
			b.log.Debug("server list updated",
				zap.String("service", b.service),
				zap.Int("count", len(servers)))
		case <-b.stop:
			return
		}
	}
}

// ChooseServer picks one instance from the current snapshot with the
// configured rule.
func (b *DynamicBalancer) ChooseServer(key string) (*discovery.ServiceInstance, error) {
	b.mu.RLock()
	rule := b.rule
	servers := b.servers
	b.mu.RUnlock()

	if rule == nil {
		return nil, fmt.Errorf("loadbalance: balancer for %q not initialized", b.service)
	}
	return rule.Pick(key, servers)
}

// Servers returns a copy of the current snapshot.
func (b *DynamicBalancer) Servers() []discovery.ServiceInstance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]discovery.ServiceInstance, len(b.servers))
	copy(out, b.servers)
	return out
}

// Name reports the balancer identity with its rule, for logs and monitors.
func (b *DynamicBalancer) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.rule == nil {
		return "Dynamic"
	}
	return "Dynamic/" + b.rule.Name()
}

// Close stops the watch goroutine. Safe to call more than once.
func (b *DynamicBalancer) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	return nil
}
