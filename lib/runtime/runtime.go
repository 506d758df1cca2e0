// Package runtime assembles the host: it installs the packaged bundles into a framework,
// bridges HTTP traffic to the dispatcher bundle and tears everything down in a fixed order.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/snowmerak/bundle.go/lib/bridge"
	"github.com/snowmerak/bundle.go/lib/bundle"
	"github.com/snowmerak/bundle.go/lib/config"
	"github.com/snowmerak/bundle.go/lib/dispatcher"
	"github.com/snowmerak/bundle.go/lib/framework"
	"github.com/snowmerak/bundle.go/lib/lifecycle"
	"github.com/snowmerak/bundle.go/lib/logging"
	"github.com/snowmerak/bundle.go/lib/metrics"
	"github.com/snowmerak/bundle.go/lib/telemetry"
	"github.com/snowmerak/bundle.go/lib/tracker"
)

// Shutdown step order. Lower runs first.
const (
	OrderHTTPServer   = 10
	OrderBridge       = 20
	OrderTracker      = 30
	OrderFramework    = 40
	OrderTelemetry    = 50
	OrderPackageClose = 60
)

// ServiceName is reported by telemetry.
const ServiceName = "bundlehost"

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("runtime already started")
	// ErrNoPackage is returned when neither a package path nor embedded bundles are configured.
	ErrNoPackage = errors.New("no bundle package: set package_path or embed bundles")
)

// Runtime is one host process worth of state.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	embedded   fs.FS
	activators map[string]framework.Activator
	listener   net.Listener
	version    string

	pkg          *bundle.Package
	fw           *framework.Framework
	tracker      *tracker.Tracker[bridge.Delegate]
	bridge       *bridge.Bridge
	orchestrator *bundle.Orchestrator
	metrics      metrics.Collector
	prometheus   *metrics.Prometheus
	telemetry    *telemetry.Provider
	handler      http.Handler
	server       *http.Server
	serveErr     chan error
	bundles      []*framework.Bundle

	shutdown *lifecycle.Sequence
	started  atomic.Bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithEmbedded supplies the bundles compiled into the binary. It is used when the
// configuration names no package path.
func WithEmbedded(fsys fs.FS) Option {
	return func(r *Runtime) {
		r.embedded = fsys
	}
}

// WithActivator binds an extra activator to a bundle symbolic name.
func WithActivator(symbolicName string, activator framework.Activator) Option {
	return func(r *Runtime) {
		r.activators[symbolicName] = activator
	}
}

// WithListener serves on ln instead of listening on the configured address.
func WithListener(ln net.Listener) Option {
	return func(r *Runtime) {
		r.listener = ln
	}
}

// WithVersion sets the version reported by telemetry.
func WithVersion(version string) Option {
	return func(r *Runtime) {
		r.version = version
	}
}

// New creates a runtime. Nothing happens until Start.
func New(cfg config.Config, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:        cfg,
		logger:     logging.Discard(),
		activators: make(map[string]framework.Activator),
		version:    "dev",
		serveErr:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.shutdown = lifecycle.NewSequence(r.logger)
	return r
}

// Start brings the host up. On failure, whatever was already started is torn down by
// Shutdown, which the caller should still call.
func (r *Runtime) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := r.setupObservability(ctx); err != nil {
		return err
	}

	pkg, err := r.openPackage()
	if err != nil {
		return err
	}
	r.pkg = pkg
	r.shutdown.MustAdd(OrderPackageClose, "package close", func(context.Context) error {
		return r.pkg.Close()
	})

	r.startFramework()

	r.orchestrator = bundle.NewOrchestrator(
		bundle.NewScanner(r.pkg),
		bundle.NewInstaller(r.fw, r.pkg,
			bundle.WithLogger(r.logger),
			bundle.WithMetrics(r.metrics),
			bundle.WithTracer(r.telemetry.Tracer("github.com/snowmerak/bundle.go/lib/bundle")),
		),
		bundle.WithParallelism(r.cfg.InstallParallelism),
		bundle.WithOrchestratorLogger(r.logger),
	)
	bundles, err := r.orchestrator.Run(ctx, r.cfg.BundlesDir)
	if err != nil {
		return fmt.Errorf("install bundles: %w", err)
	}
	r.bundles = bundles

	// the dispatcher bundle reads the bridge configuration when it starts, so the bridge
	// is initialized before any bundle is started
	if err := r.bridge.Init(bridge.Config{Name: r.cfg.Bridge.Name, InitParams: r.cfg.Bridge.InitParams}); err != nil {
		return fmt.Errorf("init bridge: %w", err)
	}

	r.startBundles(ctx)

	r.handler = r.routes()
	if err := r.serve(); err != nil {
		return err
	}

	delegate := false
	if _, ok := r.tracker.Current(); ok {
		delegate = true
	}
	r.logger.Info("Runtime started.", "addr", r.Addr(), "bundles", len(r.bundles), "delegate", delegate)
	return nil
}

func (r *Runtime) setupObservability(ctx context.Context) error {
	if r.cfg.Metrics.Enabled {
		r.prometheus = metrics.NewPrometheus(r.cfg.Metrics.Namespace)
		r.metrics = r.prometheus
	} else {
		r.metrics = metrics.Noop()
	}

	tp, err := telemetry.New(ctx, telemetry.Config{
		Exporter:       r.cfg.Tracing.Exporter,
		ServiceName:    ServiceName,
		ServiceVersion: r.version,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	r.telemetry = tp
	r.shutdown.MustAdd(OrderTelemetry, "telemetry shutdown", r.telemetry.Shutdown)
	return nil
}

func (r *Runtime) openPackage() (*bundle.Package, error) {
	if r.cfg.PackagePath != "" {
		r.logger.Info("Opening bundle package.", "path", r.cfg.PackagePath)
		return bundle.OpenPackage(r.cfg.PackagePath)
	}
	if r.embedded == nil {
		return nil, ErrNoPackage
	}
	return bundle.EmbeddedPackage(r.embedded), nil
}

func (r *Runtime) startFramework() {
	r.fw = framework.New(
		framework.WithOpener(r.pkg.Opener()),
		framework.WithLogger(r.logger),
		framework.WithProperties(map[string]string{
			"bundles.dir": r.cfg.BundlesDir,
		}),
	)

	holder := bridge.NewConfigHolder()
	r.fw.RegisterActivator(dispatcher.SymbolicName, dispatcher.NewActivator(holder, r.logger))
	r.fw.RegisterActivator(dispatcher.WelcomeSymbolicName, dispatcher.WelcomeActivator())
	for name, activator := range r.activators {
		r.fw.RegisterActivator(name, activator)
	}

	r.tracker = tracker.New(r.fw, dispatcher.ServiceName, tracker.Cast[bridge.Delegate](),
		tracker.WithLogger(r.logger),
		tracker.WithMetrics(r.metrics),
	)
	r.bridge = bridge.New(r.tracker,
		bridge.WithConfigHolder(holder),
		bridge.WithLogger(r.logger),
		bridge.WithMetrics(r.metrics),
		bridge.WithTracer(r.telemetry.Tracer("github.com/snowmerak/bundle.go/lib/bridge")),
	)

	r.shutdown.MustAdd(OrderBridge, "bridge destroy", func(context.Context) error {
		r.bridge.Destroy()
		return nil
	})
	r.shutdown.MustAdd(OrderTracker, "tracker close", func(context.Context) error {
		r.tracker.Close()
		return nil
	})
	r.shutdown.MustAdd(OrderFramework, "framework stop", r.fw.Stop)
}

// startBundles starts installed bundles by ascending id. A bundle that fails to start is
// logged and left resolved.
func (r *Runtime) startBundles(ctx context.Context) {
	for _, b := range r.bundles {
		if err := b.Start(ctx); err != nil {
			r.logger.Error("Failed to start bundle.", "id", b.ID(), "symbolic_name", b.SymbolicName(), "error", err)
		}
	}
}

// Shutdown runs the shutdown sequence. It is safe to call after a failed Start.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.logger.Info("Shutting down runtime.")
	return r.shutdown.Run(ctx)
}

// ShutdownOrder returns the names of the shutdown steps run so far.
func (r *Runtime) ShutdownOrder() []string {
	return r.shutdown.Executed()
}

// Framework returns the running framework.
func (r *Runtime) Framework() *framework.Framework {
	return r.fw
}

// Bundles returns the bundles installed at startup, ordered by id.
func (r *Runtime) Bundles() []*framework.Bundle {
	return r.bundles
}

// InstalledCount returns how many bundles the installer installed.
func (r *Runtime) InstalledCount() int64 {
	if r.orchestrator == nil {
		return 0
	}
	return r.orchestrator.InstalledCount()
}

// Failures returns per-entry install errors from startup.
func (r *Runtime) Failures() []*bundle.InstallError {
	if r.orchestrator == nil {
		return nil
	}
	return r.orchestrator.Failures()
}

// DelegatePresent reports whether the bridge currently has a delegate.
func (r *Runtime) DelegatePresent() bool {
	if r.tracker == nil {
		return false
	}
	_, ok := r.tracker.Current()
	return ok
}
