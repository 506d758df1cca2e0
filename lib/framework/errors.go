package framework

import (
	"errors"
	"strings"
)

var (
	// ErrFrameworkClosed is returned by any state-changing call after Stop.
	ErrFrameworkClosed = errors.New("framework is closed")
	// ErrNotABundle is returned when an archive has no Bundle-SymbolicName.
	ErrNotABundle = errors.New("archive is not a bundle")
	// ErrDuplicateBundle is returned when the same symbolic name and version is installed twice.
	ErrDuplicateBundle = errors.New("bundle with the same symbolic name and version is already installed")
	// ErrPermissionDenied is returned when the install policy rejects a location.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidState is returned when an operation does not fit the current bundle or service state.
	ErrInvalidState = errors.New("invalid state")
	// ErrActivatorFailed wraps an error returned by an activator.
	ErrActivatorFailed = errors.New("activator failed")
	// ErrUnknownBundle is returned when looking up an id that is not installed.
	ErrUnknownBundle = errors.New("unknown bundle")
)

// Error carries the operation and location of a framework failure. It matches both its
// sentinel Kind and its Cause with errors.Is.
type Error struct {
	Op       string
	Location string
	Kind     error
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("framework: ")
	b.WriteString(e.Op)
	if e.Location != "" {
		b.WriteString(" ")
		b.WriteString(e.Location)
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func newError(op, location string, kind, cause error) *Error {
	return &Error{Op: op, Location: location, Kind: kind, Cause: cause}
}
