// Package factory is the provisioning registry of the library: given a
// client name it resolves the named configuration, constructs the configured
// client and load-balancer implementations, binds them together, and caches
// the result so each name maps to exactly one client and one balancer for
// the life of the process.
//
// Concurrency layout:
//
//   - One factory-wide mutex serializes every client-side mutator
//     (RegisterClient, GetClient, GetClientWithConfig, CreateClient,
//     GetBalancer, GetBalancerWithConfig, RegisterBalancerFromProperties),
//     regardless of which name is involved. The duplicate check and the
//     insert therefore never race, at the cost of serializing creation of
//     unrelated names — a throughput limit, not a correctness one.
//   - RegisterBalancer runs outside that mutex under a dedicated balancer
//     mutex covering its whole check-construct-insert sequence, so client
//     registration (which calls it with the global mutex held) and direct
//     callers cannot double-provision a name. Lock order is always
//     global → balancer.
//   - Configuration resolution lives in config.Resolver with its own
//     per-name atomic discipline and is never blocked by either mutex when
//     called directly.
package factory

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/udduke/ribbon/client"
	"github.com/udduke/ribbon/config"
	"github.com/udduke/ribbon/loadbalance"
	"github.com/udduke/ribbon/monitor"
)

// Factory creates and caches named clients and load balancers.
//
// The three caches live for the life of the Factory and are never evicted.
// Construct one Factory at process start and share it; tests get isolation
// by constructing their own.
type Factory struct {
	mu        sync.Mutex // global critical section, see package comment
	clients   map[string]client.Client
	lbMu      sync.Mutex // balancer cache discipline, independent of mu
	balancers map[string]loadbalance.Balancer

	resolver *config.Resolver
	inst     *Instantiator
	sink     monitor.Sink
	log      *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(f *Factory) { f.log = log }
}

// WithResolver replaces the configuration resolver.
func WithResolver(r *config.Resolver) Option {
	return func(f *Factory) { f.resolver = r }
}

// WithInstantiator replaces the implementation instantiator. The default
// carries the built-in implementations (see RegisterDefaults).
func WithInstantiator(it *Instantiator) Option {
	return func(f *Factory) { f.inst = it }
}

// WithSink sets the monitoring sink notified of each constructed object.
// Sink failures are logged and discarded.
func WithSink(sink monitor.Sink) Option {
	return func(f *Factory) { f.sink = sink }
}

// New creates a Factory with empty caches.
func New(opts ...Option) *Factory {
	f := &Factory{
		clients:   make(map[string]client.Client),
		balancers: make(map[string]loadbalance.Balancer),
		sink:      monitor.NopSink{},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.resolver == nil {
		f.resolver = config.NewResolver(config.WithResolverLogger(f.log))
	}
	if f.inst == nil {
		f.inst = NewInstantiator(WithInstantiatorLogger(f.log))
		RegisterDefaults(f.inst, f.log)
	}
	return f
}

// Instantiator exposes the implementation registry, so callers can add their
// own client or balancer implementations before provisioning.
func (f *Factory) Instantiator() *Instantiator { return f.inst }

// ResolveConfig resolves the named configuration, memoized per name. A nil
// factory means the default config implementation.
func (f *Factory) ResolveConfig(name string, factory config.Factory) (config.ClientConfig, error) {
	return f.resolver.Resolve(name, factory)
}

// RegisterClient constructs the client configured for name, auto-provisions
// and binds a load balancer when the config asks for one, and caches the
// result. It fails with ErrClientExists when name already has a client; any
// other failure is logged and returned as a ConfigurationError for name.
func (f *Factory) RegisterClient(name string, cfg config.ClientConfig) (client.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerClientLocked(name, cfg)
}

func (f *Factory) registerClientLocked(name string, cfg config.ClientConfig) (client.Client, error) {
	if name == "" {
		return nil, errors.New("factory: empty client name")
	}
	if _, exists := f.clients[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrClientExists, name)
	}

	c, err := f.buildClient(name, cfg)
	if err != nil {
		cfgErr := &ConfigurationError{Name: name, Err: err}
		f.log.Warn("unable to initialize client", zap.String("name", name), zap.Error(err))
		return nil, cfgErr
	}

	f.clients[name] = c

	if err := f.sink.RegisterObject("Client_"+name, c); err != nil {
		f.log.Warn("monitor sink rejected client registration",
			zap.String("name", name), zap.Error(err))
	}
	f.log.Info("client registered", zap.String("name", name))
	return c, nil
}

// buildClient runs the construction sequence. Failures leave no state
// behind: the client cache is only written by the caller on success, and
// RegisterBalancer likewise inserts only after its construction succeeded.
func (f *Factory) buildClient(name string, cfg config.ClientConfig) (client.Client, error) {
	implID := config.String(cfg, config.KeyClientImpl, "rpc")
	obj, err := f.inst.Construct(implID, cfg)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(client.Client)
	if !ok {
		return nil, fmt.Errorf("factory: implementation %q is not a client", implID)
	}

	if config.Bool(cfg, config.KeyBalancerEnabled, true) {
		lb, err := f.RegisterBalancer(name, cfg)
		if err != nil {
			return nil, err
		}
		if aware, ok := c.(client.LoadBalancerAware); ok {
			aware.SetLoadBalancer(lb)
		}
	}
	return c, nil
}

// GetClient returns the cached client for name, registering one from the
// default named configuration on the first call. Registration failures come
// back wrapped, since this convenience path cannot itself be the cause of a
// duplicate registration.
func (f *Factory) GetClient(name string) (client.Client, error) {
	return f.GetClientWithConfig(name, nil)
}

// GetClientWithConfig is GetClient with a caller-supplied configuration
// factory for the first-time resolution.
func (f *Factory) GetClientWithConfig(name string, factory config.Factory) (client.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[name]; ok {
		return c, nil
	}
	c, err := f.createClientLocked(name, factory)
	if err != nil {
		return nil, fmt.Errorf("factory: unable to create client: %w", err)
	}
	return c, nil
}

// CreateClient resolves the configuration with the given factory and
// registers a client for name without consulting the cache first. Intended
// for first-time call sites that already know no entry exists; a concurrent
// or earlier registration surfaces as ErrClientExists.
func (f *Factory) CreateClient(name string, factory config.Factory) (client.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createClientLocked(name, factory)
}

func (f *Factory) createClientLocked(name string, factory config.Factory) (client.Client, error) {
	cfg, err := f.resolver.Resolve(name, factory)
	if err != nil {
		return nil, err
	}
	return f.registerClientLocked(name, cfg)
}

// RegisterBalancer constructs the load balancer configured for name from an
// already-resolved config and caches it. Fails with ErrBalancerExists when
// the name already has one; construction failures are wrapped and leave the
// name unprovisioned.
//
// This path intentionally runs outside the factory's global mutex (client
// registration calls it with that mutex held); its own mutex covers the
// whole check-construct-insert sequence, so concurrent direct calls cannot
// double-provision a name.
func (f *Factory) RegisterBalancer(name string, cfg config.ClientConfig) (loadbalance.Balancer, error) {
	f.lbMu.Lock()
	defer f.lbMu.Unlock()

	if _, exists := f.balancers[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrBalancerExists, name)
	}

	implID := config.String(cfg, config.KeyBalancerImpl, "dynamic")
	obj, err := f.inst.Construct(implID, cfg)
	if err != nil {
		return nil, fmt.Errorf("factory: unable to provision load balancer for %q: %w", name, err)
	}
	lb, ok := obj.(loadbalance.Balancer)
	if !ok {
		return nil, fmt.Errorf("factory: implementation %q is not a load balancer", implID)
	}

	f.balancers[name] = lb

	if err := f.sink.RegisterObject("LoadBalancer_"+name, lb); err != nil {
		f.log.Warn("monitor sink rejected balancer registration",
			zap.String("name", name), zap.Error(err))
	}
	f.log.Info("load balancer provisioned",
		zap.String("name", name), zap.String("balancer", lb.Name()))
	return lb, nil
}

// RegisterBalancerFromProperties resolves the configuration with the given
// factory, then provisions a balancer for name. The existence check runs
// before resolution so a duplicate name fails without the resolution work.
func (f *Factory) RegisterBalancerFromProperties(name string, factory config.Factory) (loadbalance.Balancer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerBalancerFromPropertiesLocked(name, factory)
}

func (f *Factory) registerBalancerFromPropertiesLocked(name string, factory config.Factory) (loadbalance.Balancer, error) {
	if lb := f.lookupBalancer(name); lb != nil {
		return nil, fmt.Errorf("%w: %q", ErrBalancerExists, name)
	}
	cfg, err := f.resolver.Resolve(name, factory)
	if err != nil {
		return nil, err
	}
	return f.RegisterBalancer(name, cfg)
}

// GetBalancer returns the cached balancer for name, provisioning one from
// the default named configuration on the first call.
func (f *Factory) GetBalancer(name string) (loadbalance.Balancer, error) {
	return f.GetBalancerWithConfig(name, nil)
}

// GetBalancerWithConfig is GetBalancer with a caller-supplied configuration
// factory for the first-time resolution.
func (f *Factory) GetBalancerWithConfig(name string, factory config.Factory) (loadbalance.Balancer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if lb := f.lookupBalancer(name); lb != nil {
		return lb, nil
	}
	lb, err := f.registerBalancerFromPropertiesLocked(name, factory)
	if err != nil {
		return nil, fmt.Errorf("factory: unable to create load balancer: %w", err)
	}
	return lb, nil
}

func (f *Factory) lookupBalancer(name string) loadbalance.Balancer {
	f.lbMu.Lock()
	defer f.lbMu.Unlock()
	return f.balancers[name]
}
