package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore keeps sessions for the lifetime of the process. It backs the
// "memory" backend, used for dry runs and tests that must not touch disk.
type MemoryStore struct {
	sessions sync.Map // Key: session ID, Value: *Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores a copy of s. A session ID can only be saved once.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if _, loaded := m.sessions.LoadOrStore(s.ID, s.clone()); loaded {
		return fmt.Errorf("session %s already saved", s.ID)
	}
	return nil
}

// Load returns a copy of the stored session.
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v.(*Session).clone(), nil
}

func (m *MemoryStore) List(_ context.Context) ([]Summary, error) {
	var out []Summary
	m.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*Session).Summarize())
		return true
	})
	slices.SortFunc(out, func(a, b Summary) int { return b.StartedAt.Compare(a.StartedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
