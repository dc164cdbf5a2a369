package factory

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/udduke/ribbon/config"
)

// Constructor builds an implementation with no arguments.
type Constructor func() any

// ConfigConstructor builds an implementation directly from a configuration.
type ConfigConstructor func(cfg config.ClientConfig) (any, error)

// Implementation registers the constructor surface of one pluggable type.
// At least one constructor must be set.
type Implementation struct {
	New           Constructor
	NewWithConfig ConfigConstructor
}

// Instantiator constructs pluggable implementations by ID, dispatching over
// the capabilities each registration declares, in strict order:
//
//  1. The zero-arg product implements config.Aware: construct with New, then
//     InitWithConfig. The preferred path — nearly every implementation in
//     this library takes it.
//  2. A ConfigConstructor is registered: call it with the config.
//  3. Only a plain Constructor exists: call it and drop the config, with a
//     warning, since the type accepts configuration through neither path.
//
// The instantiator is generic over the result: callers assert the returned
// value to the capability set they expect (client.Client,
// loadbalance.Balancer, ...).
type Instantiator struct {
	mu    sync.RWMutex
	impls map[string]Implementation
	log   *zap.Logger
}

// InstantiatorOption configures an Instantiator.
type InstantiatorOption func(*Instantiator)

// WithInstantiatorLogger sets the logger. Defaults to a no-op logger.
func WithInstantiatorLogger(log *zap.Logger) InstantiatorOption {
	return func(it *Instantiator) { it.log = log }
}

// NewInstantiator creates an empty instantiator.
func NewInstantiator(opts ...InstantiatorOption) *Instantiator {
	it := &Instantiator{
		impls: make(map[string]Implementation),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Register adds an implementation under id. Duplicate IDs are rejected.
func (it *Instantiator) Register(id string, impl Implementation) error {
	if id == "" {
		return errors.New("factory: empty implementation ID")
	}
	if impl.New == nil && impl.NewWithConfig == nil {
		return fmt.Errorf("factory: implementation %q has no constructor", id)
	}

	it.mu.Lock()
	defer it.mu.Unlock()
	if _, exists := it.impls[id]; exists {
		return fmt.Errorf("%w: %q", ErrImplementationExists, id)
	}
	it.impls[id] = impl
	return nil
}

// MustRegister panics on registration error. Meant for wiring built-ins.
func (it *Instantiator) MustRegister(id string, impl Implementation) {
	if err := it.Register(id, impl); err != nil {
		panic(err)
	}
}

// Construct builds the implementation registered under id and initializes it
// with cfg per the dispatch order above.
func (it *Instantiator) Construct(id string, cfg config.ClientConfig) (any, error) {
	it.mu.RLock()
	impl, ok := it.impls[id]
	it.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownImplementation, id)
	}

	if impl.New != nil {
		obj := impl.New()
		if aware, ok := obj.(config.Aware); ok {
			if err := aware.InitWithConfig(cfg); err != nil {
				return nil, &InstantiationError{Impl: id, Err: err}
			}
			return obj, nil
		}
		if impl.NewWithConfig != nil {
			// The zero-arg product takes no config; rebuild through the
			// config constructor instead.
			obj, err := impl.NewWithConfig(cfg)
			if err != nil {
				return nil, &InstantiationError{Impl: id, Err: err}
			}
			return obj, nil
		}
		it.log.Warn("implementation accepts configuration through neither InitWithConfig nor a config constructor, config ignored",
			zap.String("implementation", id))
		return obj, nil
	}

	obj, err := impl.NewWithConfig(cfg)
	if err != nil {
		return nil, &InstantiationError{Impl: id, Err: err}
	}
	return obj, nil
}
