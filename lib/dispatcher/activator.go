package dispatcher

import (
	"errors"
	"log/slog"

	"github.com/snowmerak/bundle.go/lib/bridge"
	"github.com/snowmerak/bundle.go/lib/framework"
	"github.com/snowmerak/bundle.go/lib/logging"
)

// SymbolicName is the bundle that runs the dispatcher.
const SymbolicName = "bundle.go.http.dispatcher"

// ErrNoBridgeConfig is returned when the dispatcher bundle starts before the bridge has
// published its configuration.
var ErrNoBridgeConfig = errors.New("bridge configuration is not published")

// Registry is the registry view the dispatcher needs to follow handler services.
type Registry interface {
	AddServiceListener(name string, l framework.ServiceListener) (remove func())
	ServiceReferences(name string) []*framework.ServiceReference
	Service(ref *framework.ServiceReference) (any, bool)
}

// Activator starts a Dispatcher from the bridge configuration in holder and publishes it.
type Activator struct {
	holder *bridge.ConfigHolder
	logger *slog.Logger

	dispatcher *Dispatcher
	remove     func()
}

// NewActivator creates the dispatcher bundle activator. A nil logger discards output.
func NewActivator(holder *bridge.ConfigHolder, logger *slog.Logger) *Activator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Activator{holder: holder, logger: logger}
}

// Start implements framework.Activator.
func (a *Activator) Start(ctx *framework.BundleContext) error {
	cfg, ok := a.holder.Get()
	if !ok {
		return ErrNoBridgeConfig
	}

	d := New(cfg, a.logger.With("dispatcher", cfg.Name))
	reg := ctx.Framework()

	a.remove = ctx.AddServiceListener(HandlerService, framework.ServiceListenerFunc(func(event framework.ServiceEvent) {
		switch event.Type {
		case framework.ServiceRegistered:
			d.mountService(reg, event.Reference)
		case framework.ServiceUnregistering:
			d.Unmount(event.Reference.ID())
		}
	}))
	for _, ref := range ctx.ServiceReferences(HandlerService) {
		d.mountService(reg, ref)
	}

	if _, err := ctx.RegisterService(ServiceName, d, framework.Properties{"name": cfg.Name}); err != nil {
		a.remove()
		return err
	}
	a.dispatcher = d

	a.logger.Info("Dispatcher started.", "name", cfg.Name, "patterns", d.Patterns())
	return nil
}

// Stop implements framework.Activator. The dispatcher service itself is unregistered by
// the framework.
func (a *Activator) Stop(*framework.BundleContext) error {
	if a.remove != nil {
		a.remove()
		a.remove = nil
	}
	a.dispatcher = nil
	a.logger.Info("Dispatcher stopped.")
	return nil
}

// Dispatcher returns the running dispatcher, or nil while stopped.
func (a *Activator) Dispatcher() *Dispatcher {
	return a.dispatcher
}
