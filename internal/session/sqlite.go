package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/node"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		outcome TEXT NOT NULL,
		query TEXT,
		step_count INTEGER NOT NULL,
		plan_json TEXT NOT NULL,
		placeholders_json TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS step_results (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		step_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		cause TEXT NOT NULL DEFAULT '',
		error TEXT,
		command TEXT,
		stdout TEXT,
		stderr TEXT,
		stdout_truncated INTEGER NOT NULL DEFAULT 0,
		stderr_truncated INTEGER NOT NULL DEFAULT 0,
		exit_code INTEGER,
		started_at TEXT,
		ended_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);`,
}

// SQLiteStore keeps sessions in a SQLite database using a pure-Go driver.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	for _, q := range append([]string{"PRAGMA journal_mode=WAL;", "PRAGMA foreign_keys=ON;"}, schema...) {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize session schema: %w", err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Session database ready.", "path", path)
	return &SQLiteStore{db: db}, nil
}

// Save writes s and its results in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	planJSON, err := json.Marshal(sess.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	placeholdersJSON, err := json.Marshal(sess.Placeholders)
	if err != nil {
		return fmt.Errorf("failed to encode placeholders: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, ended_at, outcome, query, step_count, plan_json, placeholders_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, formatTime(sess.StartedAt), formatTime(sess.EndedAt), string(sess.Outcome),
		sess.Plan.Query, len(sess.Plan.Steps), string(planJSON), string(placeholdersJSON),
	); err != nil {
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}

	for seq, r := range sess.Results {
		var exitCode sql.NullInt64
		if r.ExitCode != nil {
			exitCode = sql.NullInt64{Int64: int64(*r.ExitCode), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO step_results (session_id, seq, step_index, status, cause, error, command, stdout, stderr,
			   stdout_truncated, stderr_truncated, exit_code, started_at, ended_at, duration_ns)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, seq, r.Index, r.Status.String(), string(r.Cause), r.Error, r.Command, r.Stdout, r.Stderr,
			r.StdoutTruncated, r.StderrTruncated, exitCode, formatTime(r.StartedAt), formatTime(r.EndedAt), int64(r.Duration),
		); err != nil {
			return fmt.Errorf("failed to insert result for step %d: %w", r.Index, err)
		}
	}
	return tx.Commit()
}

// Load reads a session back. It returns ErrNotFound for an unknown id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	sess := &Session{ID: id, Sealed: true}
	var startedAt, endedAt, outcome, planJSON, placeholdersJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at, ended_at, outcome, plan_json, placeholders_json FROM sessions WHERE id = ?`, id,
	).Scan(&startedAt, &endedAt, &outcome, &planJSON, &placeholdersJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	sess.Outcome = Outcome(outcome)
	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if sess.EndedAt, err = parseTime(endedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(planJSON), &sess.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan of session %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(placeholdersJSON), &sess.Placeholders); err != nil {
		return nil, fmt.Errorf("failed to decode placeholders of session %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT step_index, status, cause, error, command, stdout, stderr, stdout_truncated, stderr_truncated,
		   exit_code, started_at, ended_at, duration_ns
		 FROM step_results WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load results of session %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                                         StepResult
			status, cause, ended                      string
			errText, command, stdout, stderr, started sql.NullString
			exitCode                                  sql.NullInt64
			duration                                  int64
		)
		if err := rows.Scan(&r.Index, &status, &cause, &errText, &command, &stdout, &stderr,
			&r.StdoutTruncated, &r.StderrTruncated, &exitCode, &started, &ended, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var state node.State
		if err := state.UnmarshalText([]byte(status)); err != nil {
			return nil, err
		}
		r.Status = state
		r.Cause = node.Cause(cause)
		r.Error, r.Command, r.Stdout, r.Stderr = errText.String, command.String, stdout.String, stderr.String
		if exitCode.Valid {
			code := int(exitCode.Int64)
			r.ExitCode = &code
		}
		if r.StartedAt, err = parseTime(started.String); err != nil {
			return nil, err
		}
		if r.EndedAt, err = parseTime(ended); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(duration)
		sess.Results = append(sess.Results, r)
	}
	return sess, rows.Err()
}

// List returns session summaries, most recent first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.started_at, s.ended_at, s.outcome, s.step_count,
		   (SELECT COUNT(*) FROM step_results r WHERE r.session_id = s.id AND r.status != 'success')
		 FROM sessions s ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var startedAt, endedAt, outcome string
		if err := rows.Scan(&sum.ID, &startedAt, &endedAt, &outcome, &sum.Steps, &sum.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		sum.Outcome = Outcome(outcome)
		if sum.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if sum.EndedAt, err = parseTime(endedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is fixed-width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
