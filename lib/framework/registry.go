// Package framework provides the service registry.
// This file contains service registration, lookup and listener dispatch.
package framework

import (
	"cmp"
	"fmt"
	"slices"
	"sync/atomic"
)

// ServiceReference identifies a registered service. Service ids increase monotonically,
// so a higher id was registered later.
type ServiceReference struct {
	id     int64
	name   string
	bundle *Bundle
	props  Properties
}

// ID returns the service id.
func (r *ServiceReference) ID() int64 { return r.id }

// Name returns the name the service was registered under.
func (r *ServiceReference) Name() string { return r.name }

// Bundle returns the bundle that registered the service.
func (r *ServiceReference) Bundle() *Bundle { return r.bundle }

// Property returns a registration property.
func (r *ServiceReference) Property(key string) any { return r.props[key] }

// String implements fmt.Stringer.
func (r *ServiceReference) String() string {
	return fmt.Sprintf("%s#%d", r.name, r.id)
}

// ServiceRegistration is the handle returned to the registering bundle.
type ServiceRegistration struct {
	ref          *ServiceReference
	service      any
	fw           *Framework
	unregistered atomic.Bool
}

// Reference returns the reference other code sees for this registration.
func (r *ServiceRegistration) Reference() *ServiceReference { return r.ref }

// Unregister removes the service. Listeners see ServiceUnregistering before it is removed.
func (r *ServiceRegistration) Unregister() error {
	if !r.unregistered.CompareAndSwap(false, true) {
		return newError("unregister", r.ref.String(), ErrInvalidState, fmt.Errorf("already unregistered"))
	}

	r.fw.dispatch(ServiceEvent{Type: ServiceUnregistering, Reference: r.ref})

	r.fw.registryMutex.Lock()
	delete(r.fw.services, r.ref.id)
	r.fw.registryMutex.Unlock()

	r.fw.logger.Debug("Service unregistered.", "service", r.ref.String(), "bundle", r.ref.bundle.String())
	return nil
}

type listenerEntry struct {
	name     string
	listener ServiceListener
}

func (f *Framework) registerService(b *Bundle, name string, svc any, props Properties) (*ServiceRegistration, error) {
	if f.closed.Load() {
		return nil, newError("register", name, ErrFrameworkClosed, nil)
	}
	if name == "" || svc == nil {
		return nil, newError("register", name, ErrInvalidState, fmt.Errorf("service name and object are required"))
	}

	reg := &ServiceRegistration{
		ref: &ServiceReference{
			name:   name,
			bundle: b,
			props:  props.clone(),
		},
		service: svc,
		fw:      f,
	}

	// checked under the lock stopLocked collects registrations with, after it sets Stopping
	f.registryMutex.Lock()
	switch state := b.State(); state {
	case StateStarting, StateActive:
	default:
		f.registryMutex.Unlock()
		return nil, newError("register", name, ErrInvalidState, fmt.Errorf("bundle %s is %s", b, state))
	}
	reg.ref.id = f.nextServiceID.Add(1)
	f.services[reg.ref.id] = reg
	f.registryMutex.Unlock()

	f.logger.Debug("Service registered.", "service", reg.ref.String(), "bundle", b.String())
	f.dispatch(ServiceEvent{Type: ServiceRegistered, Reference: reg.ref})
	return reg, nil
}

// AddServiceListener subscribes l to events for services registered under name, or to all
// services when name is empty. The returned function removes the listener.
func (f *Framework) AddServiceListener(name string, l ServiceListener) (remove func()) {
	id := f.nextListenerID.Add(1)

	f.registryMutex.Lock()
	f.listeners[id] = &listenerEntry{name: name, listener: l}
	f.registryMutex.Unlock()

	return func() {
		f.registryMutex.Lock()
		delete(f.listeners, id)
		f.registryMutex.Unlock()
	}
}

// ServiceReferences returns the services registered under name ordered by ascending id.
func (f *Framework) ServiceReferences(name string) []*ServiceReference {
	f.registryMutex.RLock()
	refs := make([]*ServiceReference, 0)
	for _, reg := range f.services {
		if reg.ref.name == name && !reg.unregistered.Load() {
			refs = append(refs, reg.ref)
		}
	}
	f.registryMutex.RUnlock()

	slices.SortFunc(refs, func(a, b *ServiceReference) int {
		return cmp.Compare(a.id, b.id)
	})
	return refs
}

// Service returns the object registered behind ref, if it is still registered.
func (f *Framework) Service(ref *ServiceReference) (any, bool) {
	if ref == nil {
		return nil, false
	}
	f.registryMutex.RLock()
	defer f.registryMutex.RUnlock()

	reg, ok := f.services[ref.id]
	if !ok {
		return nil, false
	}
	return reg.service, true
}

func (f *Framework) registrationsOf(b *Bundle) []*ServiceRegistration {
	f.registryMutex.RLock()
	var regs []*ServiceRegistration
	for _, reg := range f.services {
		if reg.ref.bundle == b {
			regs = append(regs, reg)
		}
	}
	f.registryMutex.RUnlock()

	// newest first
	slices.SortFunc(regs, func(x, y *ServiceRegistration) int {
		return cmp.Compare(y.ref.id, x.ref.id)
	})
	return regs
}

// dispatch delivers event to matching listeners. A panicking listener is logged and skipped.
func (f *Framework) dispatch(event ServiceEvent) {
	f.registryMutex.RLock()
	targets := make([]ServiceListener, 0, len(f.listeners))
	for _, entry := range f.listeners {
		if entry.name == "" || entry.name == event.Reference.name {
			targets = append(targets, entry.listener)
		}
	}
	f.registryMutex.RUnlock()

	for _, l := range targets {
		f.deliver(l, event)
	}
}

func (f *Framework) deliver(l ServiceListener, event ServiceEvent) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Service listener panicked.", "service", event.Reference.String(), "event", event.Type.String(), "panic", r)
		}
	}()
	l.ServiceChanged(event)
}
