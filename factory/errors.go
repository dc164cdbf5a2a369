package factory

import (
	"errors"
	"fmt"
)

var (
	// ErrClientExists indicates a client is already registered for the name.
	// The caller must pick a different name or use the existing client.
	ErrClientExists = errors.New("factory: client already registered")

	// ErrBalancerExists indicates a load balancer is already provisioned for
	// the name.
	ErrBalancerExists = errors.New("factory: load balancer already registered")

	// ErrUnknownImplementation indicates no constructor is registered under
	// the requested implementation ID.
	ErrUnknownImplementation = errors.New("factory: unknown implementation")

	// ErrImplementationExists indicates a duplicate implementation ID on
	// Instantiator.Register.
	ErrImplementationExists = errors.New("factory: implementation already registered")
)

// InstantiationError wraps a failure while constructing or initializing a
// pluggable implementation, keeping the implementation ID for diagnosis.
type InstantiationError struct {
	Impl string
	Err  error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("factory: instantiate %q: %v", e.Impl, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// ConfigurationError wraps any failure inside RegisterClient under the
// client name it was provisioning.
type ConfigurationError struct {
	Name string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("factory: unable to initialize client %q: %v", e.Name, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
