package framework

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/snowmerak/bundle.go/lib/ident"
	"github.com/snowmerak/bundle.go/lib/logging"
)

// Framework manages installed bundles, their activators and the service registry.
type Framework struct {
	uuid       string
	logger     *slog.Logger
	opener     Opener
	permission func(location string) error
	properties map[string]string

	mu         sync.RWMutex
	bundles    map[int64]*Bundle
	byLocation map[string]*Bundle

	nextBundleID atomic.Int64

	activatorMutex sync.RWMutex
	activators     map[string]Activator

	registryMutex  sync.RWMutex
	services       map[int64]*ServiceRegistration
	listeners      map[int64]*listenerEntry
	nextServiceID  atomic.Int64
	nextListenerID atomic.Int64

	closed atomic.Bool
}

// Option configures a Framework.
type Option func(*Framework)

// WithOpener sets how bundle locations are read. Defaults to FileOpener.
func WithOpener(opener Opener) Option {
	return func(f *Framework) {
		f.opener = opener
	}
}

// WithLogger sets the framework logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Framework) {
		f.logger = logger
	}
}

// WithPermission installs a policy consulted before every install. A non-nil error denies it.
func WithPermission(check func(location string) error) Option {
	return func(f *Framework) {
		f.permission = check
	}
}

// WithProperties sets launch properties visible to activators.
func WithProperties(props map[string]string) Option {
	return func(f *Framework) {
		for k, v := range props {
			f.properties[k] = v
		}
	}
}

// New creates a running framework with no bundles installed.
func New(opts ...Option) *Framework {
	f := &Framework{
		uuid:       ident.MustCompactID(),
		logger:     logging.Discard(),
		opener:     FileOpener,
		properties: make(map[string]string),
		bundles:    make(map[int64]*Bundle),
		byLocation: make(map[string]*Bundle),
		activators: make(map[string]Activator),
		services:   make(map[int64]*ServiceRegistration),
		listeners:  make(map[int64]*listenerEntry),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("framework", f.uuid)
	return f
}

// UUID returns the identifier of this framework instance.
func (f *Framework) UUID() string {
	return f.uuid
}

// Property returns a launch property.
func (f *Framework) Property(key string) string {
	return f.properties[key]
}

// IsClosed reports whether Stop has been called.
func (f *Framework) IsClosed() bool {
	return f.closed.Load()
}

// Bundle returns the installed bundle with the given id.
func (f *Framework) Bundle(id int64) (*Bundle, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	b, ok := f.bundles[id]
	if !ok {
		return nil, newError("lookup", "", ErrUnknownBundle, nil)
	}
	return b, nil
}

// Bundles returns all installed bundles ordered by ascending id.
func (f *Framework) Bundles() []*Bundle {
	f.mu.RLock()
	out := make([]*Bundle, 0, len(f.bundles))
	for _, b := range f.bundles {
		out = append(out, b)
	}
	f.mu.RUnlock()

	slices.SortFunc(out, CompareByID)
	return out
}

// CompareByID orders bundles by ascending id, for use with slices.SortFunc.
func CompareByID(a, b *Bundle) int {
	return cmp.Compare(a.id, b.id)
}
