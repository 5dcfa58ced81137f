// Package store persists sessions, pending permission requests, reply
// routes, and the default route in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/codelatch/codelatch/internal/protocol"
)

// SessionRecord mirrors one row of the sessions table.
type SessionRecord struct {
	SessionID  string
	Name       string
	CWD        string
	TmuxPane   string
	LastSeenAt string
}

// ReplyRoute maps a sent chat message back to the session it concerns.
type ReplyRoute struct {
	SessionID string
	TmuxPane  string
}

// DefaultRoute is the singleton fallback target for operator messages.
type DefaultRoute struct {
	SessionID   string
	SessionName string
	TmuxPane    string
}

// Store wraps the SQLite pool. All daemon tasks share one Store; the
// compare-and-set in TransitionPendingState is the only cross-task
// synchronization it provides.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory, opens the database (creating it if
// missing), and runs the idempotent schema bootstrap.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	s := &Store{db: db}
	if err := s.bootstrap(); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bootstrap() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			cwd TEXT NOT NULL,
			tmux_pane TEXT NOT NULL,
			last_seen_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_requests (
			request_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			session_name TEXT NOT NULL,
			tmux_pane TEXT NOT NULL,
			hook_event_name TEXT NOT NULL,
			state TEXT NOT NULL,
			telegram_message_id INTEGER,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reply_routes (
			telegram_message_id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			tmux_pane TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS default_route (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			session_id TEXT NOT NULL,
			session_name TEXT NOT NULL,
			tmux_pane TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// UpsertSession inserts or refreshes the session row for the envelope.
// last_seen_at is stored as text so lexicographic order matches time
// order.
func (s *Store) UpsertSession(ctx context.Context, envelope *protocol.HookEnvelope, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, name, cwd, tmux_pane, last_seen_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		     name = excluded.name,
		     cwd = excluded.cwd,
		     tmux_pane = excluded.tmux_pane,
		     last_seen_at = excluded.last_seen_at`,
		envelope.SessionID, envelope.SessionName, envelope.CWD, envelope.TmuxPane,
		strconv.FormatInt(now, 10),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// InsertPendingRequest records a blocking permission request in state
// 'waiting'. A duplicate request_id fails on the primary key.
func (s *Store) InsertPendingRequest(ctx context.Context, envelope *protocol.HookEnvelope, expiresAt, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_requests
		 (request_id, session_id, session_name, tmux_pane, hook_event_name, state, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, 'waiting', ?, ?)`,
		envelope.RequestID, envelope.SessionID, envelope.SessionName, envelope.TmuxPane,
		envelope.HookEventName, now, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert pending request: %w", err)
	}
	return nil
}

func (s *Store) SetPendingMessageID(ctx context.Context, requestID string, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_requests SET telegram_message_id = ? WHERE request_id = ?`,
		messageID, requestID,
	)
	if err != nil {
		return fmt.Errorf("set pending message id: %w", err)
	}
	return nil
}

// TransitionPendingState moves a request out of 'waiting' with a single
// compare-and-set statement. It reports whether this call won the
// transition; concurrent callers for the same request_id see at most
// one true.
func (s *Store) TransitionPendingState(ctx context.Context, requestID, nextState string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pending_requests SET state = ? WHERE request_id = ? AND state = 'waiting'`,
		nextState, requestID,
	)
	if err != nil {
		return false, fmt.Errorf("transition pending state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition pending state: %w", err)
	}
	return affected > 0, nil
}

// GetPendingState reads the current state of a pending request.
func (s *Store) GetPendingState(ctx context.Context, requestID string) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM pending_requests WHERE request_id = ?`, requestID,
	).Scan(&state)
	if err != nil {
		return "", fmt.Errorf("get pending state: %w", err)
	}
	return state, nil
}

// CountPendingWaiting returns the number of requests still waiting.
func (s *Store) CountPendingWaiting(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_requests WHERE state = 'waiting'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count waiting requests: %w", err)
	}
	return count, nil
}

// InsertReplyRoute records the message→session mapping. Envelopes
// without a pane cannot be replied to, so they are skipped.
func (s *Store) InsertReplyRoute(ctx context.Context, messageID int64, envelope *protocol.HookEnvelope, now int64) error {
	if envelope.TmuxPane == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reply_routes
		 (telegram_message_id, session_id, tmux_pane, created_at)
		 VALUES (?, ?, ?, ?)`,
		messageID, envelope.SessionID, envelope.TmuxPane, now,
	)
	if err != nil {
		return fmt.Errorf("insert reply route: %w", err)
	}
	return nil
}

func (s *Store) LookupReplyRoute(ctx context.Context, messageID int64) (*ReplyRoute, error) {
	var route ReplyRoute
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, tmux_pane FROM reply_routes WHERE telegram_message_id = ?`,
		messageID,
	).Scan(&route.SessionID, &route.TmuxPane)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup reply route: %w", err)
	}
	return &route, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, name, cwd, tmux_pane, last_seen_at
		 FROM sessions ORDER BY last_seen_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.SessionID, &rec.Name, &rec.CWD, &rec.TmuxPane, &rec.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, name, cwd, tmux_pane, last_seen_at
		 FROM sessions WHERE session_id = ? LIMIT 1`,
		sessionID,
	).Scan(&rec.SessionID, &rec.Name, &rec.CWD, &rec.TmuxPane, &rec.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &rec, nil
}

// FindSessionByName resolves a session name to a route, preferring the
// most recently seen session when names collide.
func (s *Store) FindSessionByName(ctx context.Context, name string) (*DefaultRoute, error) {
	var route DefaultRoute
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, name, tmux_pane FROM sessions
		 WHERE name = ? ORDER BY last_seen_at DESC LIMIT 1`,
		name,
	).Scan(&route.SessionID, &route.SessionName, &route.TmuxPane)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session by name: %w", err)
	}
	return &route, nil
}

func (s *Store) SetDefaultRoute(ctx context.Context, route *DefaultRoute, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO default_route (id, session_id, session_name, tmux_pane, updated_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     session_id = excluded.session_id,
		     session_name = excluded.session_name,
		     tmux_pane = excluded.tmux_pane,
		     updated_at = excluded.updated_at`,
		route.SessionID, route.SessionName, route.TmuxPane, now,
	)
	if err != nil {
		return fmt.Errorf("set default route: %w", err)
	}
	return nil
}

func (s *Store) GetDefaultRoute(ctx context.Context) (*DefaultRoute, error) {
	var route DefaultRoute
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, session_name, tmux_pane FROM default_route WHERE id = 1`,
	).Scan(&route.SessionID, &route.SessionName, &route.TmuxPane)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default route: %w", err)
	}
	return &route, nil
}
