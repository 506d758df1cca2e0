package tracker

import (
	"fmt"

	"github.com/snowmerak/bundle.go/lib/framework"
)

// Customizer turns a registered service into the delegate the tracker hands out, and
// releases it once the service goes away or the tracker closes.
type Customizer[T any] interface {
	Adding(ref *framework.ServiceReference, service any) (T, error)
	Removed(ref *framework.ServiceReference, value T)
}

// CustomizerFuncs adapts a pair of functions into a Customizer. A nil RemovedFunc is a no-op.
type CustomizerFuncs[T any] struct {
	AddingFunc  func(ref *framework.ServiceReference, service any) (T, error)
	RemovedFunc func(ref *framework.ServiceReference, value T)
}

// Adding implements Customizer.
func (c CustomizerFuncs[T]) Adding(ref *framework.ServiceReference, service any) (T, error) {
	return c.AddingFunc(ref, service)
}

// Removed implements Customizer.
func (c CustomizerFuncs[T]) Removed(ref *framework.ServiceReference, value T) {
	if c.RemovedFunc != nil {
		c.RemovedFunc(ref, value)
	}
}

// Cast returns a customizer that uses the service object itself as the delegate.
func Cast[T any]() Customizer[T] {
	return CustomizerFuncs[T]{
		AddingFunc: func(ref *framework.ServiceReference, service any) (T, error) {
			v, ok := service.(T)
			if !ok {
				var zero T
				return zero, fmt.Errorf("service %s is %T, not %T", ref, service, zero)
			}
			return v, nil
		},
	}
}
