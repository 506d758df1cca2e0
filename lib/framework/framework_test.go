package framework

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/bundle.go/lib/jartest"
)

// memOpener serves archives from memory, keyed by location.
type memOpener struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemOpener() *memOpener {
	return &memOpener{files: make(map[string][]byte)}
}

func (m *memOpener) put(location string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[location] = data
}

func (m *memOpener) Open(location string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[location]
	if !ok {
		return nil, fmt.Errorf("%s: %w", location, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestFramework(t *testing.T, opts ...Option) (*Framework, *memOpener) {
	t.Helper()
	opener := newMemOpener()
	fw := New(append([]Option{WithOpener(opener)}, opts...)...)
	t.Cleanup(func() { _ = fw.Stop(context.Background()) })
	return fw, opener
}

func TestFramework_New(t *testing.T) {
	fw := New(WithProperties(map[string]string{"env": "test"}))

	assert.Len(t, fw.UUID(), 32)
	assert.NotEqual(t, fw.UUID(), New().UUID())
	assert.Equal(t, "test", fw.Property("env"))
	assert.False(t, fw.IsClosed())
	assert.Empty(t, fw.Bundles())
}

func TestFramework_Install_AssignsMonotonicIDs(t *testing.T) {
	fw, opener := newTestFramework(t)
	for i := 0; i < 5; i++ {
		opener.put(fmt.Sprintf("mem:%d", i), jartest.Bundle(t, fmt.Sprintf("org.example.b%d", i), "1.0.0"))
	}

	var last int64
	for i := 0; i < 5; i++ {
		b, err := fw.Install(fmt.Sprintf("mem:%d", i))
		require.NoError(t, err)
		assert.Greater(t, b.ID(), last)
		assert.Equal(t, StateInstalled, b.State())
		last = b.ID()
	}

	bundles := fw.Bundles()
	require.Len(t, bundles, 5)
	for i := 1; i < len(bundles); i++ {
		assert.Less(t, bundles[i-1].ID(), bundles[i].ID())
	}
}

func TestFramework_Install_SameLocationReturnsExisting(t *testing.T) {
	fw, opener := newTestFramework(t)
	opener.put("mem:a", jartest.Bundle(t, "org.example.a", "1.0.0"))

	first, err := fw.Install("mem:a")
	require.NoError(t, err)
	second, err := fw.Install("mem:a")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, fw.Bundles(), 1)
}

func TestFramework_Install_Errors(t *testing.T) {
	fw, opener := newTestFramework(t)
	opener.put("mem:a", jartest.Bundle(t, "org.example.a", "1.0.0"))
	opener.put("mem:a-copy", jartest.Bundle(t, "org.example.a", "1.0.0"))
	opener.put("mem:plain", jartest.Bundle(t, "", ""))
	opener.put("mem:nomanifest", jartest.Jar(t, map[string]string{"x.txt": "x"}))
	opener.put("mem:garbage", []byte("not a zip"))

	_, err := fw.Install("mem:a")
	require.NoError(t, err)

	_, err = fw.Install("mem:a-copy")
	assert.ErrorIs(t, err, ErrDuplicateBundle)

	_, err = fw.Install("mem:plain")
	assert.ErrorIs(t, err, ErrNotABundle)

	_, err = fw.Install("mem:nomanifest")
	assert.ErrorIs(t, err, ErrNotABundle)

	_, err = fw.Install("mem:garbage")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotABundle)

	_, err = fw.Install("mem:missing")
	assert.ErrorIs(t, err, os.ErrNotExist)

	var fwErr *Error
	require.True(t, errors.As(err, &fwErr))
	assert.Equal(t, "install", fwErr.Op)
	assert.Equal(t, "mem:missing", fwErr.Location)
}

func TestFramework_Install_PermissionDenied(t *testing.T) {
	denied := errors.New("location not trusted")
	fw, opener := newTestFramework(t, WithPermission(func(location string) error {
		if location == "mem:evil" {
			return denied
		}
		return nil
	}))
	opener.put("mem:evil", jartest.Bundle(t, "org.example.evil", "1.0.0"))

	_, err := fw.Install("mem:evil")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, err, denied)
}

func TestFramework_Install_AfterStop(t *testing.T) {
	fw, opener := newTestFramework(t)
	opener.put("mem:a", jartest.Bundle(t, "org.example.a", "1.0.0"))

	require.NoError(t, fw.Stop(context.Background()))
	assert.True(t, fw.IsClosed())

	_, err := fw.Install("mem:a")
	assert.ErrorIs(t, err, ErrFrameworkClosed)

	// second stop is a no-op
	assert.NoError(t, fw.Stop(context.Background()))
}

func TestFramework_Install_Concurrent(t *testing.T) {
	fw, opener := newTestFramework(t)
	const n = 50
	for i := 0; i < n; i++ {
		opener.put(fmt.Sprintf("mem:%d", i), jartest.Bundle(t, fmt.Sprintf("org.example.c%d", i), "1.0.0"))
	}

	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := fw.Install(fmt.Sprintf("mem:%d", i))
			if assert.NoError(t, err) {
				ids <- b.ID()
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestFramework_Bundle_Lookup(t *testing.T) {
	fw, opener := newTestFramework(t)
	opener.put("mem:a", jartest.Bundle(t, "org.example.a", "2.0.0"))

	b, err := fw.Install("mem:a")
	require.NoError(t, err)

	got, err := fw.Bundle(b.ID())
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Equal(t, "org.example.a", got.SymbolicName())
	assert.Equal(t, "2.0.0", got.Version())
	assert.Equal(t, "mem:a", got.Location())
	assert.Equal(t, "org.example.a", got.Header("bundle-symbolicname"))
	assert.Equal(t, fmt.Sprintf("org.example.a [%d]", b.ID()), got.String())

	_, err = fw.Bundle(999)
	assert.ErrorIs(t, err, ErrUnknownBundle)
}

func TestFramework_InstallBundle_ReportsCreation(t *testing.T) {
	fw, opener := newTestFramework(t)
	opener.put("mem:a", jartest.Bundle(t, "org.example.a", "1.0.0"))

	first, created, err := fw.InstallBundle("mem:a")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := fw.InstallBundle("mem:a")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, again)

	_, created, err = fw.InstallBundle("mem:missing")
	require.Error(t, err)
	assert.False(t, created)
}
