package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/snowmerak/bundle.go/lib/framework"
	"github.com/snowmerak/bundle.go/lib/jartest"
)

// recordingFramework installs into a real in-memory framework, records every location it
// is asked for and can be told to refuse or panic for specific locations.
type recordingFramework struct {
	fw *framework.Framework

	mu       sync.Mutex
	calls    []string
	refuse   map[string]error
	panicFor map[string]bool
}

func newRecordingFramework(t *testing.T, pkg *Package) *recordingFramework {
	t.Helper()
	fw := framework.New(framework.WithOpener(pkg.Opener()))
	t.Cleanup(func() { _ = fw.Stop(context.Background()) })
	return &recordingFramework{
		fw:       fw,
		refuse:   make(map[string]error),
		panicFor: make(map[string]bool),
	}
}

func (r *recordingFramework) InstallBundle(location string) (*framework.Bundle, bool, error) {
	r.mu.Lock()
	r.calls = append(r.calls, location)
	refuse := r.refuse[location]
	panics := r.panicFor[location]
	r.mu.Unlock()

	if panics {
		panic("framework bug")
	}
	if refuse != nil {
		return nil, false, refuse
	}
	return r.fw.InstallBundle(location)
}

func (r *recordingFramework) installed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// packageOf builds an in-memory package. Values are jar contents.
func packageOf(files map[string][]byte) *Package {
	return NewPackage(jartest.FS(files), "mem:/")
}

func validJar(t *testing.T, name string) []byte {
	t.Helper()
	return jartest.Bundle(t, name, "1.0.0")
}

// failingFS fails to list one directory.
type failingFS struct {
	fstest.MapFS
	bad string
}

func (f failingFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == f.bad {
		return nil, fmt.Errorf("read %s: %w", name, errors.New("device error"))
	}
	return f.MapFS.ReadDir(name)
}
