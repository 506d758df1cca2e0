package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/bundle.go/lib/framework"
	"github.com/snowmerak/bundle.go/lib/jartest"
)

type handler struct {
	name string
}

// publisher is a started bundle whose context registers services in tests.
type publisher struct {
	ctx *framework.BundleContext
}

func (p publisher) publish(t *testing.T, name string, svc any) *framework.ServiceRegistration {
	t.Helper()
	reg, err := p.ctx.RegisterService(name, svc, nil)
	require.NoError(t, err)
	return reg
}

// env is a running framework whose bundles are served from memory.
type env struct {
	fw   *framework.Framework
	jars *jartest.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{jars: jartest.NewStore()}
	e.fw = framework.New(framework.WithOpener(e.jars))
	t.Cleanup(func() { _ = e.fw.Stop(context.Background()) })
	return e
}

// publisher installs and starts a bundle and returns its context.
func (e *env) publisher(t *testing.T, name string) publisher {
	t.Helper()
	e.jars.Put("mem:"+name, jartest.Bundle(t, name, "1.0.0"))

	var bctx *framework.BundleContext
	e.fw.RegisterActivatorFunc(name, func(ctx *framework.BundleContext) error {
		bctx = ctx
		return nil
	})
	b, err := e.fw.Install("mem:" + name)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	return publisher{ctx: bctx}
}

type releaseLog struct {
	mu       sync.Mutex
	released []string
}

func (r *releaseLog) customizer() Customizer[*handler] {
	return CustomizerFuncs[*handler]{
		AddingFunc: func(ref *framework.ServiceReference, service any) (*handler, error) {
			h, ok := service.(*handler)
			if !ok {
				return nil, fmt.Errorf("unexpected %T", service)
			}
			return h, nil
		},
		RemovedFunc: func(ref *framework.ServiceReference, value *handler) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.released = append(r.released, value.name)
		},
	}
}

func (r *releaseLog) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

func TestTracker_AbsentUntilRegistered(t *testing.T) {
	e := newEnv(t)
	tr := New[*handler](e.fw, "http.dispatcher", Cast[*handler]())
	require.NoError(t, tr.Open())
	defer tr.Close()

	_, ok := tr.Current()
	assert.False(t, ok)
	assert.False(t, tr.Snapshot().IsPresent())

	h := &handler{name: "h1"}
	reg := e.publisher(t, "org.example.p1").publish(t, "http.dispatcher", h)

	got, ok := tr.Current()
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Same(t, reg.Reference(), tr.Snapshot().Reference())

	require.NoError(t, reg.Unregister())
	_, ok = tr.Current()
	assert.False(t, ok)
	assert.Equal(t, int64(2), tr.Transitions())
}

func TestTracker_NewerRegistrationWins(t *testing.T) {
	e := newEnv(t)
	log := &releaseLog{}
	tr := New(e.fw, "http.dispatcher", log.customizer())
	require.NoError(t, tr.Open())
	defer tr.Close()

	h1 := &handler{name: "h1"}
	h2 := &handler{name: "h2"}
	reg1 := e.publisher(t, "org.example.p1").publish(t, "http.dispatcher", h1)
	reg2 := e.publisher(t, "org.example.p2").publish(t, "http.dispatcher", h2)

	got, ok := tr.Current()
	require.True(t, ok)
	assert.Same(t, h2, got, "newest registration is served immediately")

	// the stale removal of h1 must not clear h2
	require.NoError(t, reg1.Unregister())
	got, ok = tr.Current()
	require.True(t, ok)
	assert.Same(t, h2, got)
	assert.Equal(t, []string{"h1"}, log.list())

	require.NoError(t, reg2.Unregister())
	_, ok = tr.Current()
	assert.False(t, ok, "h1 never comes back")
	assert.Equal(t, []string{"h1", "h2"}, log.list())
}

func TestTracker_Open_AdoptsExistingService(t *testing.T) {
	e := newEnv(t)
	p := e.publisher(t, "org.example.p1")
	p.publish(t, "http.dispatcher", &handler{name: "old"})
	newest := &handler{name: "new"}
	p.publish(t, "http.dispatcher", newest)
	p.publish(t, "other", &handler{name: "other"})

	tr := New[*handler](e.fw, "http.dispatcher", Cast[*handler]())
	require.NoError(t, tr.Open())
	defer tr.Close()

	got, ok := tr.Current()
	require.True(t, ok)
	assert.Same(t, newest, got)

	assert.ErrorIs(t, tr.Open(), ErrAlreadyOpen)
}

func TestTracker_Close_IsTerminal(t *testing.T) {
	e := newEnv(t)
	log := &releaseLog{}
	tr := New(e.fw, "http.dispatcher", log.customizer())
	require.NoError(t, tr.Open())

	p := e.publisher(t, "org.example.p1")
	p.publish(t, "http.dispatcher", &handler{name: "h1"})

	tr.Close()
	assert.True(t, tr.IsClosed())
	_, ok := tr.Current()
	assert.False(t, ok)
	assert.Equal(t, []string{"h1"}, log.list())

	p.publish(t, "http.dispatcher", &handler{name: "h2"})
	_, ok = tr.Current()
	assert.False(t, ok, "events after close are ignored")

	tr.Close()
	assert.ErrorIs(t, tr.Open(), ErrClosed)
	assert.Equal(t, []string{"h1"}, log.list())
}

func TestTracker_CustomizerFailureLeavesAbsent(t *testing.T) {
	e := newEnv(t)
	tr := New[*handler](e.fw, "http.dispatcher", Cast[*handler]())
	require.NoError(t, tr.Open())
	defer tr.Close()

	p := e.publisher(t, "org.example.p1")
	p.publish(t, "http.dispatcher", "not a handler")
	_, ok := tr.Current()
	assert.False(t, ok)

	panicking := New(e.fw, "panicky", CustomizerFuncs[*handler]{
		AddingFunc: func(*framework.ServiceReference, any) (*handler, error) {
			panic("customizer bug")
		},
	})
	require.NoError(t, panicking.Open())
	defer panicking.Close()

	assert.NotPanics(t, func() {
		p.publish(t, "panicky", &handler{name: "x"})
	})
	_, ok = panicking.Current()
	assert.False(t, ok)
}

func TestTracker_CurrentIsNeverTorn(t *testing.T) {
	e := newEnv(t)
	// the delegate is named after the reference it was built from
	tr := New(e.fw, "http.dispatcher", CustomizerFuncs[*handler]{
		AddingFunc: func(ref *framework.ServiceReference, _ any) (*handler, error) {
			return &handler{name: fmt.Sprintf("h%d", ref.ID())}, nil
		},
	})
	require.NoError(t, tr.Open())
	defer tr.Close()

	p := e.publisher(t, "org.example.p1")

	var (
		stop    atomic.Bool
		readers sync.WaitGroup
		torn    atomic.Int64
	)
	for range 8 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for !stop.Load() {
				s := tr.Snapshot()
				v, ok := s.Value()
				if !ok {
					continue
				}
				if v.name != fmt.Sprintf("h%d", s.Reference().ID()) {
					torn.Add(1)
				}
			}
		}()
	}

	var writers sync.WaitGroup
	for range 4 {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for range 50 {
				reg, err := p.ctx.RegisterService("http.dispatcher", &handler{}, nil)
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, reg.Unregister())
			}
		}()
	}
	writers.Wait()
	stop.Store(true)
	readers.Wait()

	assert.Zero(t, torn.Load())
	_, ok := tr.Current()
	assert.False(t, ok, "every registration was removed")
}

// heldRegistry serves lookups from a framework but keeps the tracker's listener so a test
// can deliver events in any order.
type heldRegistry struct {
	*framework.Framework
	listener framework.ServiceListener
}

func (r *heldRegistry) AddServiceListener(name string, l framework.ServiceListener) (remove func()) {
	r.listener = l
	return func() { r.listener = nil }
}

func TestTracker_RegistrationReportedAfterRemovalIsIgnored(t *testing.T) {
	e := newEnv(t)
	registry := &heldRegistry{Framework: e.fw}
	log := &releaseLog{}
	tr := New(registry, "http.dispatcher", log.customizer())
	require.NoError(t, tr.Open())
	defer tr.Close()

	reg := e.publisher(t, "org.example.p1").publish(t, "http.dispatcher", &handler{name: "h1"})
	ref := reg.Reference()

	// the unregistering event overtakes the registration event, while the registry still
	// returns the service
	registry.listener.ServiceChanged(framework.ServiceEvent{Type: framework.ServiceUnregistering, Reference: ref})
	_, stillThere := e.fw.Service(ref)
	require.True(t, stillThere)
	registry.listener.ServiceChanged(framework.ServiceEvent{Type: framework.ServiceRegistered, Reference: ref})

	_, ok := tr.Current()
	assert.False(t, ok)
	assert.Zero(t, tr.Transitions())
	assert.Empty(t, log.list())

	// a later registration is still tracked
	h2 := &handler{name: "h2"}
	reg2 := e.publisher(t, "org.example.p2").publish(t, "http.dispatcher", h2)
	registry.listener.ServiceChanged(framework.ServiceEvent{Type: framework.ServiceRegistered, Reference: reg2.Reference()})

	got, ok := tr.Current()
	require.True(t, ok)
	assert.Same(t, h2, got)
}

func TestTracker_RegistrationRacingStopLeavesAbsent(t *testing.T) {
	for attempt := range 50 {
		e := newEnv(t)
		tr := New[*handler](e.fw, "http.dispatcher", Cast[*handler]())
		require.NoError(t, tr.Open())

		p := e.publisher(t, "org.example.p1")
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, err := p.ctx.RegisterService("http.dispatcher", &handler{}, nil); err != nil {
					return
				}
			}
		}()

		require.NoError(t, p.ctx.Bundle().Stop(context.Background()))
		<-done

		require.Empty(t, e.fw.ServiceReferences("http.dispatcher"))
		_, ok := tr.Current()
		require.False(t, ok, "attempt %d: tracker kept a removed service", attempt)
		tr.Close()
	}
}
