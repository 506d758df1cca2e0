package framework

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/snowmerak/bundle.go/lib/manifest"
)

// Bundle is an installed module. Its identity never changes after install; its state is
// read without locking.
type Bundle struct {
	id           int64
	symbolicName string
	version      string
	location     string
	manifest     *manifest.Manifest
	fw           *Framework

	state atomic.Uint32

	// serializes Start/Stop/Uninstall
	lifecycleMu sync.Mutex
	bctx        *BundleContext
	activator   Activator
}

// ID returns the framework-assigned id. Ids increase monotonically per framework.
func (b *Bundle) ID() int64 { return b.id }

// SymbolicName returns Bundle-SymbolicName without directives.
func (b *Bundle) SymbolicName() string { return b.symbolicName }

// Version returns Bundle-Version.
func (b *Bundle) Version() string { return b.version }

// Location returns the location the bundle was installed from.
func (b *Bundle) Location() string { return b.location }

// Header returns a main manifest attribute.
func (b *Bundle) Header(name string) string { return b.manifest.Get(name) }

// State returns the current lifecycle state.
func (b *Bundle) State() State { return State(b.state.Load()) }

func (b *Bundle) setState(s State) { b.state.Store(uint32(s)) }

// String implements fmt.Stringer.
func (b *Bundle) String() string {
	return fmt.Sprintf("%s [%d]", b.symbolicName, b.id)
}

// BundleContext is handed to an activator. It is valid between Start and Stop.
type BundleContext struct {
	ctx    context.Context
	bundle *Bundle
	fw     *Framework
}

// Context returns the context the bundle was started with.
func (c *BundleContext) Context() context.Context { return c.ctx }

// Bundle returns the bundle this context belongs to.
func (c *BundleContext) Bundle() *Bundle { return c.bundle }

// Framework returns the owning framework.
func (c *BundleContext) Framework() *Framework { return c.fw }

// RegisterService publishes svc under name on behalf of the context's bundle.
func (c *BundleContext) RegisterService(name string, svc any, props Properties) (*ServiceRegistration, error) {
	return c.fw.registerService(c.bundle, name, svc, props)
}

// AddServiceListener subscribes to events for services called name ("" for all).
func (c *BundleContext) AddServiceListener(name string, l ServiceListener) (remove func()) {
	return c.fw.AddServiceListener(name, l)
}

// ServiceReferences lists services registered under name.
func (c *BundleContext) ServiceReferences(name string) []*ServiceReference {
	return c.fw.ServiceReferences(name)
}

// Service returns the service object behind ref.
func (c *BundleContext) Service(ref *ServiceReference) (any, bool) {
	return c.fw.Service(ref)
}
