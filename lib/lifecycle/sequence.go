// Package lifecycle runs shutdown steps in an explicit order.
package lifecycle

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snowmerak/bundle.go/lib/logging"
)

// Step is one named unit of shutdown work.
type Step struct {
	Order int
	Name  string
	Run   func(ctx context.Context) error
}

// Sequence runs registered steps by ascending Order. It runs at most once.
type Sequence struct {
	logger *slog.Logger

	mu       sync.Mutex
	steps    []Step
	executed []string

	ran atomic.Bool
}

// NewSequence creates an empty sequence. A nil logger discards output.
func NewSequence(logger *slog.Logger) *Sequence {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sequence{logger: logger}
}

// Add registers a step. Orders must be unique.
func (s *Sequence) Add(order int, name string, run func(ctx context.Context) error) error {
	if run == nil {
		return fmt.Errorf("step %q has no function", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.steps {
		if st.Order == order {
			return fmt.Errorf("step %q: order %d is taken by %q", name, order, st.Name)
		}
	}
	s.steps = append(s.steps, Step{Order: order, Name: name, Run: run})
	return nil
}

// MustAdd is Add that panics on a duplicate order. Meant for fixed wiring.
func (s *Sequence) MustAdd(order int, name string, run func(ctx context.Context) error) {
	if err := s.Add(order, name, run); err != nil {
		panic(err)
	}
}

// Run executes every step. A failing or panicking step is logged and the rest still run;
// the failures are returned joined. Running a sequence twice is a no-op.
func (s *Sequence) Run(ctx context.Context) error {
	if !s.ran.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	steps := slices.Clone(s.steps)
	s.mu.Unlock()

	slices.SortFunc(steps, func(a, b Step) int {
		return cmp.Compare(a.Order, b.Order)
	})

	var errs []error
	for _, st := range steps {
		start := time.Now()
		err := runStep(ctx, st)

		s.mu.Lock()
		s.executed = append(s.executed, st.Name)
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("Shutdown step failed.", "order", st.Order, "step", st.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", st.Name, err))
			continue
		}
		s.logger.Info("Shutdown step done.", "order", st.Order, "step", st.Name, "elapsed", time.Since(start))
	}
	return errors.Join(errs...)
}

// Executed returns the names of the steps run so far, in order.
func (s *Sequence) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.executed)
}

func runStep(ctx context.Context, st Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.Run(ctx)
}
