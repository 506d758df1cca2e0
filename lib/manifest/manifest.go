// Package manifest reads the main section of a jar manifest (META-INF/MANIFEST.MF).
//
// Only the attributes needed to identify a bundle are interpreted; everything else is
// kept as raw name/value pairs.
package manifest

import (
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Path is the location of the manifest inside an archive.
const Path = "META-INF/MANIFEST.MF"

// Well-known attribute names.
const (
	BundleSymbolicName = "Bundle-SymbolicName"
	BundleVersion      = "Bundle-Version"
	BundleName         = "Bundle-Name"
	ManifestVersion    = "Manifest-Version"
)

// DefaultVersion is reported for bundles that declare no Bundle-Version.
const DefaultVersion = "0.0.0"

// ErrNoManifest is returned when an archive carries no manifest entry.
var ErrNoManifest = errors.New("manifest: archive has no " + Path)

// Manifest holds the main attributes of a jar manifest. Lookups are case-insensitive.
type Manifest struct {
	attrs map[string]string
	names []string
}

// Get returns the value of the named main attribute, or "" if it is not present.
func (m *Manifest) Get(name string) string {
	if m == nil {
		return ""
	}
	return m.attrs[strings.ToLower(name)]
}

// Names returns the attribute names in the order they appeared.
func (m *Manifest) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// SymbolicName returns Bundle-SymbolicName without any ";directive" suffix.
func (m *Manifest) SymbolicName() string {
	v := m.Get(BundleSymbolicName)
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// Version returns Bundle-Version, or DefaultVersion when absent.
func (m *Manifest) Version() string {
	if v := strings.TrimSpace(m.Get(BundleVersion)); v != "" {
		return v
	}
	return DefaultVersion
}

// IsBundle reports whether the manifest carries a non-empty symbolic name.
func (m *Manifest) IsBundle() bool {
	return m.SymbolicName() != ""
}

// Parse reads the main section of a manifest. Continuation lines start with a single
// space; the main section ends at the first blank line.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{attrs: make(map[string]string)}

	var name string
	var value strings.Builder
	flush := func() {
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, seen := m.attrs[key]; !seen {
			m.names = append(m.names, name)
		}
		m.attrs[key] = value.String()
		name = ""
		value.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' {
			if name == "" {
				return nil, fmt.Errorf("manifest: line %d: continuation without attribute", lineNo)
			}
			value.WriteString(line[1:])
			continue
		}

		flush()
		i := strings.Index(line, ":")
		if i <= 0 {
			return nil, fmt.Errorf("manifest: line %d: missing ':' separator", lineNo)
		}
		name = strings.TrimSpace(line[:i])
		value.WriteString(strings.TrimPrefix(line[i+1:], " "))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: read: %w", err)
	}
	flush()

	return m, nil
}

// FromArchive locates and parses the manifest of a zip/jar archive.
func FromArchive(r io.ReaderAt, size int64) (*Manifest, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("manifest: open archive: %w", err)
	}

	for _, f := range zr.File {
		if !strings.EqualFold(f.Name, Path) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("manifest: open %s: %w", f.Name, err)
		}
		defer rc.Close()
		return Parse(rc)
	}

	return nil, ErrNoManifest
}

// FromBytes is FromArchive over an in-memory archive.
func FromBytes(data []byte) (*Manifest, error) {
	return FromArchive(bytes.NewReader(data), int64(len(data)))
}
