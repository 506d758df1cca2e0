// Package framework provides an in-process module framework: bundles are installed from a
// location, started through activators compiled into the host, and publish services into a
// registry that other code can observe.
//
// This file contains the core types and callback interfaces.
package framework

import (
	"io"
	"os"
	"strings"
)

// State is the lifecycle state of an installed bundle.
type State uint32

const (
	StateInstalled State = iota + 1
	StateResolved
	StateStarting
	StateActive
	StateStopping
	StateUninstalled
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateResolved:
		return "resolved"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateUninstalled:
		return "uninstalled"
	default:
		return "unknown"
	}
}

// Activator is run when a bundle with a matching symbolic name starts and stops.
type Activator interface {
	Start(ctx *BundleContext) error
	Stop(ctx *BundleContext) error
}

// ActivatorFunc adapts a start function into an Activator with a no-op Stop.
// Services registered through the context are unregistered on stop regardless.
type ActivatorFunc func(ctx *BundleContext) error

// Start implements Activator.
func (f ActivatorFunc) Start(ctx *BundleContext) error {
	return f(ctx)
}

// Stop implements Activator.
func (f ActivatorFunc) Stop(*BundleContext) error {
	return nil
}

// Properties are the metadata attached to a registered service.
type Properties map[string]any

func (p Properties) clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ServiceEventType tells a listener what happened to a service.
type ServiceEventType uint8

const (
	// ServiceRegistered is delivered after a service becomes available.
	ServiceRegistered ServiceEventType = iota + 1
	// ServiceUnregistering is delivered while the service is still registered, right before removal.
	ServiceUnregistering
)

// String returns the event type name.
func (t ServiceEventType) String() string {
	switch t {
	case ServiceRegistered:
		return "registered"
	case ServiceUnregistering:
		return "unregistering"
	default:
		return "unknown"
	}
}

// ServiceEvent describes a change in the service registry.
type ServiceEvent struct {
	Type      ServiceEventType
	Reference *ServiceReference
}

// ServiceListener receives registry events. Events are delivered synchronously on the
// goroutine that changed the registry, outside any framework lock.
type ServiceListener interface {
	ServiceChanged(event ServiceEvent)
}

// ServiceListenerFunc is a convenience type for converting functions to ServiceListener.
type ServiceListenerFunc func(event ServiceEvent)

// ServiceChanged implements ServiceListener.
func (f ServiceListenerFunc) ServiceChanged(event ServiceEvent) {
	f(event)
}

// Opener resolves a bundle location to its archive contents.
type Opener interface {
	Open(location string) (io.ReadCloser, error)
}

// OpenerFunc is a convenience type for converting functions to Opener.
type OpenerFunc func(location string) (io.ReadCloser, error)

// Open implements Opener.
func (f OpenerFunc) Open(location string) (io.ReadCloser, error) {
	return f(location)
}

// FileOpener opens plain paths and file: URLs from the local filesystem.
var FileOpener Opener = OpenerFunc(func(location string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(location, "file:"))
})
