package bridge

import (
	"net/http"
)

// Delegate serves requests forwarded by the bridge. A returned error, or a panic, makes the
// bridge answer 500 unless the delegate already wrote a status.
type Delegate interface {
	Serve(w http.ResponseWriter, r *http.Request) error
}

// DelegateFunc is a convenience type for converting functions to Delegate.
type DelegateFunc func(w http.ResponseWriter, r *http.Request) error

// Serve implements Delegate.
func (f DelegateFunc) Serve(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// HandlerDelegate adapts an http.Handler. It only fails by panicking.
func HandlerDelegate(h http.Handler) Delegate {
	return DelegateFunc(func(w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	})
}

// DelegateSource yields the current delegate. tracker.Tracker[Delegate] satisfies it.
type DelegateSource interface {
	Open() error
	Current() (Delegate, bool)
}

// committedWriter remembers whether a status has been sent.
type committedWriter struct {
	http.ResponseWriter
	status int
}

func (w *committedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *committedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *committedWriter) committed() bool {
	return w.status != 0
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *committedWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
