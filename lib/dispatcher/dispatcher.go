// Package dispatcher provides the request delegate that the bridge forwards to. It runs
// inside a bundle and routes requests to http.Handler services published by other bundles.
package dispatcher

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/snowmerak/bundle.go/lib/bridge"
	"github.com/snowmerak/bundle.go/lib/framework"
	"github.com/snowmerak/bundle.go/lib/logging"
)

// Service names and properties.
const (
	// ServiceName is what the dispatcher is registered under; the bridge tracks it.
	ServiceName = "http.dispatcher"
	// HandlerService is the name http.Handler services are published under.
	HandlerService = "http.handler"
	// PatternProperty holds the http.ServeMux pattern of a handler service.
	PatternProperty = "pattern"
)

type mount struct {
	id      int64
	pattern string
	handler http.Handler
}

// Dispatcher routes requests to mounted handlers. It implements bridge.Delegate.
type Dispatcher struct {
	cfg    bridge.Config
	logger *slog.Logger

	mu     sync.Mutex
	mounts map[int64]mount

	mux atomic.Pointer[http.ServeMux]
}

// New creates a dispatcher with nothing mounted. A nil logger discards output.
func New(cfg bridge.Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		mounts: make(map[int64]mount),
	}
	d.mux.Store(http.NewServeMux())
	return d
}

// Config returns the bridge configuration the dispatcher was built with.
func (d *Dispatcher) Config() bridge.Config {
	return d.cfg
}

// Serve implements bridge.Delegate.
func (d *Dispatcher) Serve(w http.ResponseWriter, r *http.Request) error {
	d.mux.Load().ServeHTTP(w, r)
	return nil
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mux.Load().ServeHTTP(w, r)
}

// Mount routes pattern to h under the given service id. Mounting the same id again
// replaces it.
func (d *Dispatcher) Mount(id int64, pattern string, h http.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mounts[id] = mount{id: id, pattern: pattern, handler: h}
	d.rebuildLocked()
}

// Unmount removes the handler mounted under id.
func (d *Dispatcher) Unmount(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.mounts[id]; !ok {
		return
	}
	delete(d.mounts, id)
	d.rebuildLocked()
}

// Patterns returns the mounted patterns ordered by service id.
func (d *Dispatcher) Patterns() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.mounts))
	for _, m := range d.sortedLocked() {
		out = append(out, m.pattern)
	}
	return out
}

func (d *Dispatcher) sortedLocked() []mount {
	ms := make([]mount, 0, len(d.mounts))
	for _, m := range d.mounts {
		ms = append(ms, m)
	}
	slices.SortFunc(ms, func(a, b mount) int {
		return cmp.Compare(a.id, b.id)
	})
	return ms
}

// rebuildLocked swaps in a fresh mux. A pattern that conflicts with an older mount is
// skipped and logged.
func (d *Dispatcher) rebuildLocked() {
	mux := http.NewServeMux()
	for _, m := range d.sortedLocked() {
		if err := handle(mux, m.pattern, m.handler); err != nil {
			d.logger.Error("Failed to mount handler.", "pattern", m.pattern, "service_id", m.id, "error", err)
		}
	}
	d.mux.Store(mux)
}

// handle converts a ServeMux registration panic into an error.
func handle(mux *http.ServeMux, pattern string, h http.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	mux.Handle(pattern, h)
	return nil
}

// mountService mounts a handler service, ignoring services that are not handlers.
func (d *Dispatcher) mountService(reg Registry, ref *framework.ServiceReference) {
	pattern, _ := ref.Property(PatternProperty).(string)
	if pattern == "" {
		d.logger.Warn("Handler service has no pattern.", "service", ref.String())
		return
	}
	svc, ok := reg.Service(ref)
	if !ok {
		return
	}
	h, ok := svc.(http.Handler)
	if !ok {
		d.logger.Warn("Handler service is not an http.Handler.", "service", ref.String(), "type", fmt.Sprintf("%T", svc))
		return
	}
	d.Mount(ref.ID(), pattern, h)
	d.logger.Info("Handler mounted.", "pattern", pattern, "service", ref.String(), "bundle", ref.Bundle().String())
}
