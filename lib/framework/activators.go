// Package framework provides activator management.
// This file contains functions for registering, unregistering, and looking up the activators
// that are compiled into the host and bound to bundles by symbolic name.
package framework

// RegisterActivator binds an activator to every bundle with the given symbolic name.
// Registering the same name again replaces the previous activator.
func (f *Framework) RegisterActivator(symbolicName string, activator Activator) {
	f.activatorMutex.Lock()
	defer f.activatorMutex.Unlock()
	f.activators[symbolicName] = activator
}

// RegisterActivatorFunc is a convenience method to register a start function as an activator
func (f *Framework) RegisterActivatorFunc(symbolicName string, start func(ctx *BundleContext) error) {
	f.RegisterActivator(symbolicName, ActivatorFunc(start))
}

// UnregisterActivator removes the activator for the symbolic name. Bundles already started
// keep the activator they were started with.
func (f *Framework) UnregisterActivator(symbolicName string) {
	f.activatorMutex.Lock()
	defer f.activatorMutex.Unlock()
	delete(f.activators, symbolicName)
}

// getActivator safely retrieves the activator for the given symbolic name
func (f *Framework) getActivator(symbolicName string) (Activator, bool) {
	f.activatorMutex.RLock()
	defer f.activatorMutex.RUnlock()
	activator, exists := f.activators[symbolicName]
	return activator, exists
}
