// Package bridge forwards HTTP requests to a delegate that comes and goes at runtime.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/snowmerak/bundle.go/lib/ctxlog"
	"github.com/snowmerak/bundle.go/lib/ident"
	"github.com/snowmerak/bundle.go/lib/logging"
	"github.com/snowmerak/bundle.go/lib/metrics"
	"github.com/snowmerak/bundle.go/lib/telemetry"
)

// RequestIDHeader carries the request id in and out of the bridge.
const RequestIDHeader = "X-Request-Id"

// ErrAlreadyInitialized is returned by a second Init.
var ErrAlreadyInitialized = errors.New("bridge is already initialized")

// Bridge is an http.Handler that hands every request to the current delegate. Requests
// arriving while no delegate is present get 503.
type Bridge struct {
	source  DelegateSource
	holder  *ConfigHolder
	logger  *slog.Logger
	metrics metrics.Collector
	tracer  trace.Tracer

	initialized atomic.Bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(b *Bridge) {
		b.metrics = c
	}
}

// WithTracer sets the tracer for forward spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Bridge) {
		b.tracer = tracer
	}
}

// WithConfigHolder publishes the Init configuration into holder instead of a private one.
func WithConfigHolder(holder *ConfigHolder) Option {
	return func(b *Bridge) {
		b.holder = holder
	}
}

// New creates a bridge over source. It serves 503 until Init has opened the source and a
// delegate shows up.
func New(source DelegateSource, opts ...Option) *Bridge {
	b := &Bridge{
		source:  source,
		holder:  NewConfigHolder(),
		logger:  logging.Discard(),
		metrics: metrics.Noop(),
		tracer:  telemetry.Tracer("github.com/snowmerak/bundle.go/lib/bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ConfigHolder returns the holder the Init configuration is published in.
func (b *Bridge) ConfigHolder() *ConfigHolder {
	return b.holder
}

// Init publishes cfg and opens the delegate source. It may be called once successfully; a
// failed Init can be retried.
func (b *Bridge) Init(cfg Config) error {
	if !b.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	start := time.Now()
	b.logger.Info("Initializing bridge.", "name", cfg.Name)

	// the delegate factory reads the holder when the source starts producing delegates
	b.holder.Set(cfg)
	if err := b.source.Open(); err != nil {
		b.initialized.Store(false)
		return fmt.Errorf("open delegate source: %w", err)
	}

	b.logger.Info("Bridge initialized.", "name", cfg.Name, "elapsed", time.Since(start))
	return nil
}

// ServeHTTP implements http.Handler.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = ident.MustCompactID()
	}
	w.Header().Set(RequestIDHeader, requestID)

	target := r.URL.RequestURI()
	logger := b.logger.With("request_id", requestID)

	delegate, ok := b.source.Current()
	if !ok {
		logger.Error("Can't serve request, dispatcher is unavailable.", "target", target)
		b.metrics.BridgeRequest(metrics.OutcomeUnavailable)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	ctx, span := b.tracer.Start(r.Context(), "bridge.forward", trace.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.target", target),
	))
	defer span.End()
	r = r.WithContext(ctxlog.WithLogger(ctx, logger))

	cw := &committedWriter{ResponseWriter: w}
	if err := forward(delegate, cw, r); err != nil {
		b.metrics.BridgeRequest(metrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "delegate failed")

		if cw.committed() {
			logger.Error("Exception while handling request, response already committed.", "target", target, "status", cw.status, "error", err)
			return
		}
		logger.Error("Exception while handling request.", "target", target, "error", err)
		http.Error(cw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	b.metrics.BridgeRequest(metrics.OutcomeForwarded)
	span.SetAttributes(attribute.Int("http.status_code", cw.status))
}

// Destroy marks the point in shutdown where the bridge stops being used. Delegate teardown
// belongs to the tracker, which is closed after this.
func (b *Bridge) Destroy() {
	b.logger.Info("Destroying bridge.")
}

func forward(d Delegate, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			// net/http aborts the connection on this panic
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err = fmt.Errorf("delegate panic: %v", rec)
		}
	}()
	return d.Serve(w, r)
}
