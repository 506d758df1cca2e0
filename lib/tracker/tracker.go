// Package tracker follows one named service in a framework registry and keeps the
// delegate built from it available to readers without locking.
package tracker

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/snowmerak/bundle.go/lib/framework"
	"github.com/snowmerak/bundle.go/lib/logging"
	"github.com/snowmerak/bundle.go/lib/metrics"
)

var (
	// ErrClosed is returned by Open after Close.
	ErrClosed = errors.New("tracker is closed")
	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("tracker is already open")
)

// Registry is the part of the framework a tracker listens to.
type Registry interface {
	AddServiceListener(name string, l framework.ServiceListener) (remove func())
	ServiceReferences(name string) []*framework.ServiceReference
	Service(ref *framework.ServiceReference) (any, bool)
}

// Tracker holds the delegate for the most recently registered service of one name.
//
// A newer registration replaces the current delegate at once. Removal of a service clears
// the slot only while that service is the one tracked, so a late removal of a replaced
// service never hides its successor. Close is terminal.
type Tracker[T any] struct {
	registry   Registry
	service    string
	customizer Customizer[T]
	logger     *slog.Logger
	metrics    metrics.Collector

	state       atomic.Pointer[State[T]]
	transitions atomic.Int64
	opened      atomic.Bool
	closed      atomic.Bool

	// serializes registry callbacks, Open and Close; never taken by readers
	eventMu sync.Mutex
	tracked map[int64]State[T]
	// ids whose removal arrived before their registration event
	removed map[int64]struct{}
	remove  func()
}

// Option configures a Tracker.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics metrics.Collector
}

// WithLogger sets the tracker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// New creates a tracker for service. It does nothing until Open.
func New[T any](registry Registry, service string, customizer Customizer[T], opts ...Option) *Tracker[T] {
	o := options{logger: logging.Discard(), metrics: metrics.Noop()}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Tracker[T]{
		registry:   registry,
		service:    service,
		customizer: customizer,
		logger:     o.logger.With("service", service),
		metrics:    o.metrics,
		tracked:    make(map[int64]State[T]),
		removed:    make(map[int64]struct{}),
	}
	absent := Absent[T]()
	t.state.Store(&absent)
	return t
}

// Open starts listening and adopts a service that is already registered.
func (t *Tracker[T]) Open() error {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()

	if t.closed.Load() {
		return ErrClosed
	}
	if !t.opened.CompareAndSwap(false, true) {
		return ErrAlreadyOpen
	}

	// listen first so a registration racing with the lookup below is not lost
	t.remove = t.registry.AddServiceListener(t.service, framework.ServiceListenerFunc(t.serviceChanged))

	for _, ref := range t.registry.ServiceReferences(t.service) {
		t.addingLocked(ref)
	}

	t.logger.Info("Tracker opened.", "state", t.Snapshot().String())
	return nil
}

// Current returns the delegate, if one is present. It never blocks.
func (t *Tracker[T]) Current() (T, bool) {
	return t.state.Load().Value()
}

// Snapshot returns the current state.
func (t *Tracker[T]) Snapshot() State[T] {
	return *t.state.Load()
}

// Transitions returns how many times the state has changed.
func (t *Tracker[T]) Transitions() int64 {
	return t.transitions.Load()
}

// IsClosed reports whether Close has been called.
func (t *Tracker[T]) IsClosed() bool {
	return t.closed.Load()
}

// Close stops listening, clears the delegate and releases every delegate built so far.
// Events arriving afterwards are ignored. Calling Close again is a no-op.
func (t *Tracker[T]) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}

	t.eventMu.Lock()
	defer t.eventMu.Unlock()

	if t.remove != nil {
		t.remove()
		t.remove = nil
	}

	absent := Absent[T]()
	if prev := t.state.Swap(&absent); prev.IsPresent() {
		t.transitioned("absent")
	}

	for id, s := range t.tracked {
		delete(t.tracked, id)
		t.release(s)
	}
	clear(t.removed)

	t.logger.Info("Tracker closed.")
}

func (t *Tracker[T]) serviceChanged(event framework.ServiceEvent) {
	if t.closed.Load() {
		return
	}

	t.eventMu.Lock()
	defer t.eventMu.Unlock()

	// Close may have won the lock
	if t.closed.Load() {
		return
	}

	switch event.Type {
	case framework.ServiceRegistered:
		t.addingLocked(event.Reference)
	case framework.ServiceUnregistering:
		t.removedLocked(event.Reference)
	}
}

func (t *Tracker[T]) addingLocked(ref *framework.ServiceReference) {
	if _, ok := t.tracked[ref.ID()]; ok {
		return
	}
	// The registry still returns a service while its unregistering event is delivered, so a
	// registration event reported after its own removal must not be adopted.
	if _, ok := t.removed[ref.ID()]; ok {
		delete(t.removed, ref.ID())
		t.logger.Debug("Ignoring registration of a removed service.", "ref", ref.String())
		return
	}

	svc, ok := t.registry.Service(ref)
	if !ok {
		return
	}

	value, err := t.customize(ref, svc)
	if err != nil {
		t.logger.Error("Failed to build delegate from service.", "ref", ref.String(), "error", err)
		return
	}

	next := Present(ref, value)
	t.tracked[ref.ID()] = next

	for {
		cur := t.state.Load()
		if cur.IsPresent() && cur.ref.ID() > ref.ID() {
			// an older registration reported late; keep it tracked for release but do not serve it
			t.logger.Debug("Ignoring older service.", "ref", ref.String(), "current", cur.ref.String())
			return
		}
		if t.state.CompareAndSwap(cur, &next) {
			t.transitioned("present")
			t.logger.Info("Delegate available.", "ref", ref.String(), "replaced", cur.String())
			return
		}
	}
}

func (t *Tracker[T]) removedLocked(ref *framework.ServiceReference) {
	s, ok := t.tracked[ref.ID()]
	if !ok {
		t.removed[ref.ID()] = struct{}{}
		return
	}
	delete(t.tracked, ref.ID())

	cur := t.state.Load()
	if cur.IsPresent() && cur.ref.ID() == ref.ID() {
		absent := Absent[T]()
		if t.state.CompareAndSwap(cur, &absent) {
			t.transitioned("absent")
			t.logger.Info("Delegate unavailable.", "ref", ref.String())
		}
	} else {
		t.logger.Debug("Stale service removal ignored.", "ref", ref.String(), "current", cur.String())
	}

	t.release(s)
}

func (t *Tracker[T]) transitioned(to string) {
	t.transitions.Add(1)
	t.metrics.TrackerTransition(to)
	t.metrics.DelegatePresent(to == "present")
}

// customize contains a panicking customizer.
func (t *Tracker[T]) customize(ref *framework.ServiceReference, svc any) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return t.customizer.Adding(ref, svc)
}

func (t *Tracker[T]) release(s State[T]) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Delegate release panicked.", "ref", s.ref.String(), "panic", r)
		}
	}()
	t.customizer.Removed(s.ref, s.value)
}
