package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/snowmerak/bundle.go/lib/crypto"
	"github.com/snowmerak/bundle.go/lib/report"
)

// Routes served next to the bridge.
const (
	CryptoPath  = "/tools/crypto"
	MetricsPath = "/metrics"
	BundlesPath = "/system/bundles"
	HealthPath  = "/health"
)

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()

	hasher := crypto.NewHasher(
		crypto.WithIterations(r.cfg.Crypto.Iterations),
		crypto.WithSaltSize(r.cfg.Crypto.SaltSize),
	)
	mux.Handle(CryptoPath, crypto.NewHandler(hasher, r.logger))
	mux.Handle(BundlesPath, report.NewHandler(r.fw, r.logger))
	mux.HandleFunc(HealthPath, r.health)
	if r.prometheus != nil {
		mux.Handle(MetricsPath, r.prometheus.Handler())
	}
	mux.Handle("/", r.bridge)

	return mux
}

type healthStatus struct {
	Status    string `json:"status"`
	Framework string `json:"framework"`
	Installed int64  `json:"installed"`
	Delegate  bool   `json:"delegate"`
}

// health answers 200 while a delegate is present and 503 otherwise.
func (r *Runtime) health(w http.ResponseWriter, req *http.Request) {
	r.logger.Debug("Health check endpoint hit.", "remote_addr", req.RemoteAddr, "path", req.URL.Path)

	status := healthStatus{
		Status:    "ok",
		Framework: r.fw.UUID(),
		Installed: r.InstalledCount(),
		Delegate:  r.DelegatePresent(),
	}
	code := http.StatusOK
	if !status.Delegate {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// Handler returns the host's HTTP handler. It is nil before Start.
func (r *Runtime) Handler() http.Handler {
	return r.handler
}

// Addr returns the address the server listens on.
func (r *Runtime) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Err reports a server failure after Start. It never yields after a clean shutdown.
func (r *Runtime) Err() <-chan error {
	return r.serveErr
}

func (r *Runtime) serve() error {
	if r.listener == nil {
		ln, err := net.Listen("tcp", r.cfg.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", r.cfg.Addr, err)
		}
		r.listener = ln
	}

	r.server = &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: r.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       r.cfg.Server.ReadTimeout,
		WriteTimeout:      r.cfg.Server.WriteTimeout,
		IdleTimeout:       r.cfg.Server.IdleTimeout,
	}

	ln := r.listener
	go func() {
		r.logger.Info("HTTP server starting.", "addr", ln.Addr().String())
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("HTTP server failed unexpectedly.", "error", err)
			r.serveErr <- err
		}
	}()

	r.shutdown.MustAdd(OrderHTTPServer, "http server shutdown", func(ctx context.Context) error {
		return r.server.Shutdown(ctx)
	})
	return nil
}
