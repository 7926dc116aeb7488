package session

import "context"

// Store persists sealed sessions.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	// List returns summaries, most recent first.
	List(ctx context.Context) ([]Summary, error)
	Close() error
}
