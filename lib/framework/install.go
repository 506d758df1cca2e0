package framework

import (
	"errors"
	"fmt"
	"io"

	"github.com/snowmerak/bundle.go/lib/manifest"
)

// Install installs the bundle found at location and returns it in the Installed state.
// Installing a location that is already installed returns the existing bundle.
func (f *Framework) Install(location string) (*Bundle, error) {
	b, _, err := f.InstallBundle(location)
	return b, err
}

// InstallBundle is Install that also reports whether this call created the bundle. It is
// false when location was already installed, including by a concurrent call.
func (f *Framework) InstallBundle(location string) (b *Bundle, created bool, err error) {
	if f.closed.Load() {
		return nil, false, newError("install", location, ErrFrameworkClosed, nil)
	}

	if f.permission != nil {
		if err := f.permission(location); err != nil {
			return nil, false, newError("install", location, ErrPermissionDenied, err)
		}
	}

	f.mu.RLock()
	existing, ok := f.byLocation[location]
	f.mu.RUnlock()
	if ok {
		return existing, false, nil
	}

	m, err := f.readManifest(location)
	if err != nil {
		return nil, false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Stop may have raced with the read above.
	if f.closed.Load() {
		return nil, false, newError("install", location, ErrFrameworkClosed, nil)
	}
	if existing, ok := f.byLocation[location]; ok {
		return existing, false, nil
	}
	for _, other := range f.bundles {
		if other.symbolicName == m.SymbolicName() && other.version == m.Version() {
			return nil, false, newError("install", location, ErrDuplicateBundle,
				fmt.Errorf("%s %s is installed from %s", other.symbolicName, other.version, other.location))
		}
	}

	b = &Bundle{
		id:           f.nextBundleID.Add(1),
		symbolicName: m.SymbolicName(),
		version:      m.Version(),
		location:     location,
		manifest:     m,
		fw:           f,
	}
	b.setState(StateInstalled)

	f.bundles[b.id] = b
	f.byLocation[location] = b

	f.logger.Debug("Bundle installed.", "id", b.id, "symbolic_name", b.symbolicName, "version", b.version, "location", location)
	return b, true, nil
}

func (f *Framework) readManifest(location string) (*manifest.Manifest, error) {
	rc, err := f.opener.Open(location)
	if err != nil {
		return nil, newError("install", location, nil, fmt.Errorf("open: %w", err))
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, newError("install", location, nil, fmt.Errorf("read: %w", err))
	}

	m, err := manifest.FromBytes(data)
	if errors.Is(err, manifest.ErrNoManifest) {
		return nil, newError("install", location, ErrNotABundle, err)
	}
	if err != nil {
		return nil, newError("install", location, nil, err)
	}
	if !m.IsBundle() {
		return nil, newError("install", location, ErrNotABundle, nil)
	}
	return m, nil
}
