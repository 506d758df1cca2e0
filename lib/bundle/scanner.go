package bundle

import (
	"io/fs"
	"iter"
	"regexp"
)

// DefaultPattern matches packaged bundle archives by their slash-separated entry name.
var DefaultPattern = regexp.MustCompile(`^bundles.*\.jar$`)

// Entry is a packaged file that looks like a bundle archive.
type Entry struct {
	Name string
}

// Scanner lists bundle candidates in a Package.
type Scanner struct {
	pkg     *Package
	pattern *regexp.Regexp
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithPattern replaces DefaultPattern.
func WithPattern(pattern *regexp.Regexp) ScannerOption {
	return func(s *Scanner) {
		s.pattern = pattern
	}
}

// NewScanner creates a scanner over pkg.
func NewScanner(pkg *Package, opts ...ScannerOption) *Scanner {
	s := &Scanner{pkg: pkg, pattern: DefaultPattern}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Find checks that dir exists in the package and returns the entries of the whole package
// whose names match the scanner pattern. The sequence is lazy and can be ranged over more than
// once; each pass walks the package again. A walk failure is yielded as a *DiscoveryError and
// ends the pass.
func (s *Scanner) Find(dir string) (iter.Seq2[Entry, error], error) {
	info, err := fs.Stat(s.pkg.fsys, dir)
	if err != nil {
		return nil, &DiscoveryError{Code: ErrorCodePackageNotFound, Op: "open", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Code: ErrorCodePackageNotFound, Op: "open", Path: dir, Err: fs.ErrInvalid}
	}

	return func(yield func(Entry, error) bool) {
		_ = fs.WalkDir(s.pkg.fsys, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				yield(Entry{}, &DiscoveryError{Code: ErrorCodePackageUnreadable, Op: "read", Path: path, Err: err})
				return fs.SkipAll
			}
			if d.IsDir() || !s.pattern.MatchString(path) {
				return nil
			}
			if !yield(Entry{Name: path}, nil) {
				return fs.SkipAll
			}
			return nil
		})
	}, nil
}
