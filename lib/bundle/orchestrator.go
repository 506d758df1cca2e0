package bundle

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/snowmerak/bundle.go/lib/ctxlog"
	"github.com/snowmerak/bundle.go/lib/framework"
)

// Orchestrator runs discovery and installation once at startup.
type Orchestrator struct {
	scanner     *Scanner
	installer   *Installer
	parallelism int
	logger      *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithParallelism bounds the number of concurrent installs. Values below 1 mean sequential.
func WithParallelism(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.parallelism = n
	}
}

// WithOrchestratorLogger sets the logger used when the context carries none.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator wires a scanner to an installer.
func NewOrchestrator(scanner *Scanner, installer *Installer, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		scanner:     scanner,
		installer:   installer,
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.parallelism < 1 {
		o.parallelism = 1
	}
	return o
}

// Run installs every bundle found under dir and returns the installed bundles ordered by
// ascending id. Entries that are not bundles or fail to install are left out. A
// *DiscoveryError means the package itself could not be read.
func (o *Orchestrator) Run(ctx context.Context, dir string) ([]*framework.Bundle, error) {
	logger := o.logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}

	entries, err := o.scanner.Find(dir)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		bundles []*framework.Bundle
		scanErr error
	)

	var g errgroup.Group
	g.SetLimit(o.parallelism)

	for entry, err := range entries {
		if err != nil {
			scanErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if b := o.installer.Install(ctx, entry); b != nil {
				mu.Lock()
				bundles = append(bundles, b)
				mu.Unlock()
			}
			return nil
		})
	}
	// installs never return an error; Wait is only a barrier
	_ = g.Wait()

	if scanErr != nil {
		return nil, scanErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(bundles, framework.CompareByID)
	logger.Info("Bundles installed.", "dir", dir, "installed", len(bundles), "count", o.installer.InstalledCount(), "failures", len(o.installer.Failures()))
	return bundles, nil
}

// InstalledCount returns the installer's running count.
func (o *Orchestrator) InstalledCount() int64 {
	return o.installer.InstalledCount()
}

// Failures returns the per-entry install errors recorded by the installer.
func (o *Orchestrator) Failures() []*InstallError {
	return o.installer.Failures()
}
