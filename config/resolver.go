package config

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Factory constructs a fresh, unloaded ClientConfig. The Resolver calls
// LoadProperties on the result before caching it.
type Factory func() ClientConfig

// ErrConfigUnavailable is returned when an earlier resolution for the same
// name failed. Failures are retained: the name is not re-resolved, no matter
// which factory later callers pass.
var ErrConfigUnavailable = errors.New("config: resolution previously failed")

// entry is the memoized outcome for a name. A nil cfg is a tombstone left by
// a failed resolution.
type entry struct {
	cfg ClientConfig
}

// Resolver memoizes one ClientConfig per name.
//
// Resolution is keyed purely by name: whichever factory produces the first
// stored config wins, and every later Resolve call for that name returns the
// same handle regardless of the factory it passes. Under a concurrent first
// request more than one construction may run, but only one result is
// retained and all callers observe that one.
//
// Resolver is independent of the factory's global lock — resolving one name
// never blocks provisioning of another.
type Resolver struct {
	configs sync.Map // name -> *entry
	factory Factory
	log     *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger. Defaults to a no-op logger.
func WithResolverLogger(log *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.log = log }
}

// WithDefaultFactory sets the factory used when Resolve is passed nil.
// Defaults to NewProperties.
func WithDefaultFactory(f Factory) ResolverOption {
	return func(r *Resolver) { r.factory = f }
}

// NewResolver creates an empty Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		factory: func() ClientConfig { return NewProperties() },
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveDefault resolves the config for name with the default factory.
func (r *Resolver) ResolveDefault(name string) (ClientConfig, error) {
	return r.Resolve(name, nil)
}

// Resolve returns the config for name, constructing and loading it on the
// first call. A nil factory means the resolver's default factory.
//
// If construction or loading fails, the error is logged and a tombstone is
// stored: the failing caller gets the underlying error, every later caller
// gets ErrConfigUnavailable without any retry.
func (r *Resolver) Resolve(name string, factory Factory) (ClientConfig, error) {
	if name == "" {
		return nil, errors.New("config: empty client name")
	}
	if v, ok := r.configs.Load(name); ok {
		return v.(*entry).result(name)
	}

	if factory == nil {
		factory = r.factory
	}
	cfg, err := r.load(name, factory)
	if err != nil {
		r.log.Error("unable to load named client config",
			zap.String("name", name),
			zap.Error(err))
		// Retain the failure. If another goroutine won the race with a real
		// config, hand that one out instead of the tombstone.
		if v, loaded := r.configs.LoadOrStore(name, &entry{}); loaded {
			return v.(*entry).result(name)
		}
		return nil, fmt.Errorf("config: load properties for %q: %w", name, err)
	}

	v, _ := r.configs.LoadOrStore(name, &entry{cfg: cfg})
	return v.(*entry).result(name)
}

func (r *Resolver) load(name string, factory Factory) (ClientConfig, error) {
	cfg := factory()
	if cfg == nil {
		return nil, errors.New("config: factory returned nil")
	}
	if err := cfg.LoadProperties(name); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *entry) result(name string) (ClientConfig, error) {
	if e.cfg == nil {
		return nil, fmt.Errorf("config: %q: %w", name, ErrConfigUnavailable)
	}
	return e.cfg, nil
}
