package tracker

import (
	"github.com/snowmerak/bundle.go/lib/framework"
)

// State is either Absent (the zero value) or Present with the tracked reference and the
// delegate built from it. A State is immutable once published.
type State[T any] struct {
	ref   *framework.ServiceReference
	value T
}

// Absent returns the empty state.
func Absent[T any]() State[T] {
	return State[T]{}
}

// Present returns a state holding value built from ref.
func Present[T any](ref *framework.ServiceReference, value T) State[T] {
	return State[T]{ref: ref, value: value}
}

// IsPresent reports whether the state holds a delegate.
func (s State[T]) IsPresent() bool {
	return s.ref != nil
}

// Reference returns the tracked service reference, or nil when absent.
func (s State[T]) Reference() *framework.ServiceReference {
	return s.ref
}

// Value returns the delegate and whether one is present.
func (s State[T]) Value() (T, bool) {
	return s.value, s.ref != nil
}

func (s State[T]) String() string {
	if s.ref == nil {
		return "absent"
	}
	return "present(" + s.ref.String() + ")"
}
