package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/snowmerak/bundle.go/lib/ctxlog"
	"github.com/snowmerak/bundle.go/lib/framework"
	"github.com/snowmerak/bundle.go/lib/manifest"
	"github.com/snowmerak/bundle.go/lib/metrics"
	"github.com/snowmerak/bundle.go/lib/telemetry"
)

// Framework is the install capability the installer needs. created is false when the
// location was already installed, so a rerun does not count it twice.
type Framework interface {
	InstallBundle(location string) (b *framework.Bundle, created bool, err error)
}

// Installer installs packaged entries one at a time and counts the successes.
// It is safe for concurrent use.
type Installer struct {
	fw       Framework
	resolver Resolver
	logger   *slog.Logger
	metrics  metrics.Collector
	tracer   trace.Tracer

	installed atomic.Int64

	failuresMu sync.Mutex
	failures   []*InstallError
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithLogger sets the logger used when the context carries none.
func WithLogger(logger *slog.Logger) InstallerOption {
	return func(i *Installer) {
		i.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) InstallerOption {
	return func(i *Installer) {
		i.metrics = c
	}
}

// WithTracer sets the tracer for install spans.
func WithTracer(tracer trace.Tracer) InstallerOption {
	return func(i *Installer) {
		i.tracer = tracer
	}
}

// NewInstaller creates an installer that resolves entries through resolver and installs
// them into fw.
func NewInstaller(fw Framework, resolver Resolver, opts ...InstallerOption) *Installer {
	i := &Installer{
		fw:       fw,
		resolver: resolver,
		metrics:  metrics.Noop(),
		tracer:   telemetry.Tracer("github.com/snowmerak/bundle.go/lib/bundle"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InstalledCount returns the number of bundles installed so far. It never decreases.
func (i *Installer) InstalledCount() int64 {
	return i.installed.Load()
}

// Failures returns the install errors recorded so far.
func (i *Installer) Failures() []*InstallError {
	i.failuresMu.Lock()
	defer i.failuresMu.Unlock()
	out := make([]*InstallError, len(i.failures))
	copy(out, i.failures)
	return out
}

// Install installs the bundle behind entry. It returns nil when the entry is not a bundle or
// could not be installed; the reason is logged and, for real failures, recorded in Failures.
func (i *Installer) Install(ctx context.Context, entry Entry) *framework.Bundle {
	logger := i.logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}

	ctx, span := i.tracer.Start(ctx, "bundle.install", trace.WithAttributes(attribute.String("bundle.entry", entry.Name)))
	defer span.End()

	res, err := i.resolver.Resolve(entry.Name)
	if err != nil {
		i.fail(logger, span, &InstallError{Code: ErrorCodeResolveFailed, Entry: entry.Name, Err: err})
		return nil
	}
	location := res.Location()
	span.SetAttributes(attribute.String("bundle.location", location))
	logger.Debug("Installing bundle.", "location", location)

	m, err := readManifest(res)
	switch {
	case errors.Is(err, manifest.ErrNoManifest):
		i.skip(logger, span, location)
		return nil
	case err != nil:
		i.fail(logger, span, &InstallError{Code: ErrorCodeReadFailed, Entry: entry.Name, Location: location, Err: err})
		return nil
	case !m.IsBundle():
		i.skip(logger, span, location)
		return nil
	}

	b, created, err := i.installSafely(location)
	if err != nil {
		i.fail(logger, span, &InstallError{Code: ErrorCodeInstallRefused, Entry: entry.Name, Location: location, Err: err})
		return nil
	}
	span.SetAttributes(attribute.Int64("bundle.id", b.ID()))
	if !created {
		logger.Debug("Bundle already installed.", "location", location, "id", b.ID())
		return b
	}

	i.installed.Add(1)
	i.metrics.BundleInstall(metrics.InstallInstalled)
	logger.Debug("Bundle installed.", "location", location, "id", b.ID(), "symbolic_name", b.SymbolicName())
	return b
}

// installSafely keeps a misbehaving Framework implementation from crashing the run.
func (i *Installer) installSafely(location string) (b *framework.Bundle, created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, created, err = nil, false, &panicError{value: r}
		}
	}()
	b, created, err = i.fw.InstallBundle(location)
	if err == nil && b == nil {
		err = errors.New("framework returned no bundle")
	}
	return b, created, err
}

func (i *Installer) skip(logger *slog.Logger, span trace.Span, location string) {
	i.metrics.BundleInstall(metrics.InstallSkipped)
	span.SetAttributes(attribute.Bool("bundle.skipped", true))
	logger.Warn("Artifact is not a bundle, skipping install.", "location", location)
}

func (i *Installer) fail(logger *slog.Logger, span trace.Span, ierr *InstallError) {
	i.failuresMu.Lock()
	i.failures = append(i.failures, ierr)
	i.failuresMu.Unlock()

	i.metrics.BundleInstall(metrics.InstallFailed)
	span.RecordError(ierr)
	span.SetStatus(codes.Error, string(ierr.Code))

	location := ierr.Location
	if location == "" {
		location = ierr.Entry
	}
	logger.Error("Failed to install bundle.", "location", location, "code", ierr.Code, "error", ierr.Err)
}

func readManifest(res Resource) (*manifest.Manifest, error) {
	rc, err := res.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return manifest.FromBytes(data)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("install panicked: %v", e.value)
}
