// Package framework provides lifecycle management for bundles and the framework itself.
// This file contains bundle start, stop and uninstall, and framework shutdown.
package framework

import (
	"context"
	"errors"
	"fmt"
)

// Start activates the bundle, running its activator if one is registered for its symbolic
// name. Starting an active bundle is a no-op. A failing activator leaves the bundle resolved
// with none of the services it registered.
func (b *Bundle) Start(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	fw := b.fw
	if fw.closed.Load() {
		return newError("start", b.location, ErrFrameworkClosed, nil)
	}

	switch b.State() {
	case StateActive:
		return nil
	case StateInstalled, StateResolved:
	default:
		return newError("start", b.location, ErrInvalidState, fmt.Errorf("bundle is %s", b.State()))
	}

	b.setState(StateStarting)
	bctx := &BundleContext{ctx: ctx, bundle: b, fw: fw}

	activator, _ := fw.getActivator(b.symbolicName)
	if activator != nil {
		if err := callActivator(activator.Start, bctx); err != nil {
			// Stopping closes the bundle to new registrations before they are collected
			b.setState(StateStopping)
			b.unregisterServices()
			b.setState(StateResolved)
			return newError("start", b.location, ErrActivatorFailed, err)
		}
	}

	b.bctx = bctx
	b.activator = activator
	b.setState(StateActive)

	fw.logger.Info("Bundle started.", "id", b.id, "symbolic_name", b.symbolicName, "activator", activator != nil)
	return nil
}

// Stop deactivates an active bundle and unregisters its services. Stopping a bundle that is
// not active is a no-op.
func (b *Bundle) Stop(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	switch b.State() {
	case StateActive:
		return b.stopLocked()
	case StateUninstalled:
		return newError("stop", b.location, ErrInvalidState, fmt.Errorf("bundle is uninstalled"))
	default:
		return nil
	}
}

// Uninstall stops the bundle if needed and removes it from the framework.
func (b *Bundle) Uninstall(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.State() == StateUninstalled {
		return newError("uninstall", b.location, ErrInvalidState, fmt.Errorf("bundle is uninstalled"))
	}

	var err error
	if b.State() == StateActive {
		err = b.stopLocked()
	}
	b.setState(StateUninstalled)

	b.fw.mu.Lock()
	delete(b.fw.bundles, b.id)
	delete(b.fw.byLocation, b.location)
	b.fw.mu.Unlock()

	b.fw.logger.Info("Bundle uninstalled.", "id", b.id, "symbolic_name", b.symbolicName)
	return err
}

// stopLocked must be called with lifecycleMu held and the bundle active.
func (b *Bundle) stopLocked() error {
	b.setState(StateStopping)

	var err error
	if b.activator != nil {
		if stopErr := callActivator(b.activator.Stop, b.bctx); stopErr != nil {
			err = newError("stop", b.location, ErrActivatorFailed, stopErr)
		}
	}
	b.unregisterServices()

	b.bctx = nil
	b.activator = nil
	b.setState(StateResolved)

	b.fw.logger.Info("Bundle stopped.", "id", b.id, "symbolic_name", b.symbolicName)
	return err
}

func (b *Bundle) unregisterServices() {
	for _, reg := range b.fw.registrationsOf(b) {
		// a concurrent Unregister by the bundle itself is not a failure here
		_ = reg.Unregister()
	}
}

// callActivator turns an activator panic into an error.
func callActivator(fn func(*BundleContext) error, bctx *BundleContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activator panic: %v", r)
		}
	}()
	return fn(bctx)
}

// Stop stops every active bundle in descending id order and closes the framework. Later
// installs, starts and registrations fail with ErrFrameworkClosed. Calling Stop again is a no-op.
func (f *Framework) Stop(ctx context.Context) error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}

	f.logger.Info("Stopping framework.")

	bundles := f.Bundles()
	var errs []error
	for i := len(bundles) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("framework stop interrupted: %w", err))
			break
		}

		b := bundles[i]
		b.lifecycleMu.Lock()
		if b.State() == StateActive {
			if err := b.stopLocked(); err != nil {
				errs = append(errs, err)
			}
		}
		b.lifecycleMu.Unlock()
	}

	f.registryMutex.Lock()
	clear(f.listeners)
	f.registryMutex.Unlock()

	f.logger.Info("Framework stopped.", "bundles", len(bundles))
	return errors.Join(errs...)
}
