// Package bundle discovers bundle archives packaged inside the host and installs them into
// a framework.
//
// This file contains the package abstraction: a read-only file tree (a jar on disk or an
// embedded directory) that both lists the packaged bundles and serves their content.
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/snowmerak/bundle.go/lib/framework"
)

// Resource is a packaged file resolved to a location the framework can install from.
type Resource interface {
	Location() string
	Open() (io.ReadCloser, error)
}

// Resolver maps an entry name to a Resource.
type Resolver interface {
	Resolve(name string) (Resource, error)
}

// Package is a read-only snapshot of the files shipped with the host.
type Package struct {
	fsys   fs.FS
	prefix string
	closer io.Closer
}

// NewPackage wraps fsys. Locations of its resources are prefix followed by the entry name.
func NewPackage(fsys fs.FS, prefix string) *Package {
	return &Package{fsys: fsys, prefix: prefix}
}

// EmbeddedPackage wraps a file system compiled into the binary, usually an embed.FS.
func EmbeddedPackage(fsys fs.FS) *Package {
	return NewPackage(fsys, "embed:/")
}

// OpenPackage opens a jar or zip file on disk. The caller must Close it.
func OpenPackage(path string) (*Package, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &DiscoveryError{Code: ErrorCodePackageNotFound, Op: "open", Path: path, Err: err}
	}
	zr, err := zip.OpenReader(abs)
	if err != nil {
		return nil, &DiscoveryError{Code: ErrorCodePackageNotFound, Op: "open", Path: path, Err: err}
	}
	return &Package{
		fsys:   zr,
		prefix: "jar:file:" + filepath.ToSlash(abs) + "!/",
		closer: zr,
	}, nil
}

// FS returns the underlying file system.
func (p *Package) FS() fs.FS {
	return p.fsys
}

// Location returns the external location of the named entry.
func (p *Package) Location(name string) string {
	return p.prefix + name
}

// Resolve implements Resolver. The entry must exist and be a regular file.
func (p *Package) Resolve(name string) (Resource, error) {
	info, err := fs.Stat(p.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("resolve %s: is a directory", name)
	}
	return &packagedFile{pkg: p, name: name}, nil
}

// Opener returns a framework.Opener that reads locations produced by this package.
func (p *Package) Opener() framework.Opener {
	return framework.OpenerFunc(func(location string) (io.ReadCloser, error) {
		name, ok := strings.CutPrefix(location, p.prefix)
		if !ok {
			return nil, fmt.Errorf("location %q does not belong to this package", location)
		}
		return p.fsys.Open(name)
	})
}

// Close releases the archive behind a package opened with OpenPackage.
func (p *Package) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

type packagedFile struct {
	pkg  *Package
	name string
}

func (f *packagedFile) Location() string {
	return f.pkg.Location(f.name)
}

func (f *packagedFile) Open() (io.ReadCloser, error) {
	return f.pkg.fsys.Open(f.name)
}
