package placeholder

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/vk/planexec/internal/plan"
)

var (
	// ErrConflict is matched by every ConflictError.
	ErrConflict = errors.New("placeholder conflict")
	// ErrUnresolvable is returned by Wait when no producer is left for a name.
	ErrUnresolvable = errors.New("placeholder cannot be resolved")
)

// ConflictError reports a second publication of a name with a different value.
type ConflictError struct {
	Name     string
	Existing string
	Proposed string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("placeholder %q already resolved to %q, refusing %q", e.Name, e.Existing, e.Proposed)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// entry tracks one name. done is closed exactly once, when the name is either
// published or becomes unresolvable.
type entry struct {
	value        string
	resolved     bool
	unresolvable bool
	pending      int
	done         chan struct{}
}

// Registry is a write-once key/value store safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) entryLocked(name string) *entry {
	e, ok := r.entries[name]
	if !ok {
		e = &entry{done: make(chan struct{})}
		r.entries[name] = e
	}
	return e
}

// Expect adds producers to the count of steps that may still publish name. It
// must be called before the run starts.
func (r *Registry) Expect(name string, producers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entryLocked(name).pending += producers
}

// Publish stores value under name. Republishing an identical value is a no-op.
func (r *Registry) Publish(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(name)
	if e.resolved {
		if e.value == value {
			return nil
		}
		return &ConflictError{Name: name, Existing: e.value, Proposed: value}
	}
	e.value = value
	e.resolved = true
	if !e.unresolvable {
		close(e.done)
	}
	e.unresolvable = false
	return nil
}

// Abandon records that one expected producer of name finished without
// publishing it. When none remain, waiters are released with ErrUnresolvable.
func (r *Registry) Abandon(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(name)
	if e.pending > 0 {
		e.pending--
	}
	if e.pending == 0 && !e.resolved && !e.unresolvable {
		e.unresolvable = true
		close(e.done)
	}
}

// Resolve returns the value of name if it has been published.
func (r *Registry) Resolve(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok && e.resolved {
		return e.value, true
	}
	return "", false
}

// Wait blocks until name is published, becomes unresolvable, or ctx ends.
func (r *Registry) Wait(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	e := r.entryLocked(name)
	done := e.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e.resolved {
		return e.value, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvable, name)
}

// Snapshot returns a copy of every published name and value.
func (r *Registry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.entries))
	for name, e := range r.entries {
		if e.resolved {
			out[name] = e.value
		}
	}
	return out
}

// Substitute replaces every {name} token in template with its published
// value. It returns the names still unresolved, leaving their tokens intact.
func (r *Registry) Substitute(template string) (string, []string) {
	r.mu.Lock()
	values := make(map[string]string, len(r.entries))
	for name, e := range r.entries {
		if e.resolved {
			values[name] = e.value
		}
	}
	r.mu.Unlock()
	return plan.ReplaceTokens(template, func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	})
}

// Seed publishes every value in seeds. It is used before a run starts.
func (r *Registry) Seed(seeds map[string]string) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(seeds)) {
		if err := r.Publish(name, seeds[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

