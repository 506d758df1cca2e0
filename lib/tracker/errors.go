package tracker

import (
	"fmt"
)

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("customizer panicked: %v", e.value)
}
