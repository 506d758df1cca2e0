// Package jartest builds jar archives in memory for tests.
package jartest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"
	"testing"
	"testing/fstest"
)

// Manifest renders a manifest main section from attribute pairs, Manifest-Version first.
func Manifest(attrs map[string]string) string {
	var b bytes.Buffer
	b.WriteString("Manifest-Version: 1.0\r\n")

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", name, attrs[name])
	}
	b.WriteString("\r\n")
	return b.String()
}

// Bundle returns a jar whose manifest names the given symbolic name and version.
func Bundle(t testing.TB, symbolicName, version string) []byte {
	t.Helper()
	attrs := map[string]string{}
	if symbolicName != "" {
		attrs["Bundle-SymbolicName"] = symbolicName
	}
	if version != "" {
		attrs["Bundle-Version"] = version
	}
	return Jar(t, map[string]string{"META-INF/MANIFEST.MF": Manifest(attrs)})
}

// Jar returns a zip archive holding files.
func Jar(t testing.TB, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("jartest: create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("jartest: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("jartest: close: %v", err)
	}
	return buf.Bytes()
}

// FS wraps raw file contents into an fstest.MapFS.
func FS(files map[string][]byte) fstest.MapFS {
	fsys := make(fstest.MapFS, len(files))
	for name, data := range files {
		fsys[name] = &fstest.MapFile{Data: data, Mode: 0o644}
	}
	return fsys
}

// Store serves jars by location. It satisfies framework.Opener.
type Store struct {
	mu   sync.RWMutex
	jars map[string][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{jars: make(map[string][]byte)}
}

// Put makes data available at location.
func (s *Store) Put(location string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jars[location] = data
}

// Open returns the jar stored at location.
func (s *Store) Open(location string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.jars[location]
	if !ok {
		return nil, fmt.Errorf("jartest: %s: %w", location, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
