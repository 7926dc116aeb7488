package dag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMissingProducer = errors.New("missing producer")
	ErrDependencyCycle = errors.New("dependency cycle")
)

// MissingProducerError reports a consumed placeholder that no step produces.
type MissingProducerError struct {
	Index       int
	Placeholder string
}

func (e *MissingProducerError) Error() string {
	return fmt.Sprintf("step %d consumes placeholder %q but no step produces it", e.Index, e.Placeholder)
}

func (e *MissingProducerError) Unwrap() error {
	return ErrMissingProducer
}

// CycleError lists the sorted indices of the steps on a dependency cycle.
type CycleError struct {
	Indices []int
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = strconv.Itoa(idx)
	}
	return fmt.Sprintf("cycle detected involving steps [%s]", strings.Join(parts, ", "))
}

func (e *CycleError) Unwrap() error {
	return ErrDependencyCycle
}
