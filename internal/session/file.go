package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/fsutil"
)

const fileExtension = ".session.json"

// FileStore keeps one JSON document per session in a directory.
type FileStore struct {
	dir string
}

// OpenFileStore prepares dir for use as a session store.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(s.dir, id+fileExtension), nil
}

// Save writes s atomically by renaming a temporary file into place.
func (s *FileStore) Save(ctx context.Context, sess *Session) error {
	path, err := s.path(sess.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store session %s: %w", sess.ID, err)
	}
	ctxlog.FromContext(ctx).Debug("Session written.", "path", path)
	return nil
}

// Load reads the session with the given id.
func (s *FileStore) Load(_ context.Context, id string) (*Session, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return readSessionFile(path)
}

// List reads every stored session and returns their summaries.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	files, err := fsutil.FindFilesByExtension(s.dir, fileExtension)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]Summary, 0, len(files))
	for _, f := range files {
		sess, err := readSessionFile(f)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("Skipping unreadable session file.", "path", f, "error", err)
			continue
		}
		out = append(out, sess.Summarize())
	}
	slices.SortFunc(out, func(a, b Summary) int { return b.StartedAt.Compare(a.StartedAt) })
	return out, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func readSessionFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSuffix(filepath.Base(path), fileExtension))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session file %s: %w", path, err)
	}
	return &sess, nil
}
