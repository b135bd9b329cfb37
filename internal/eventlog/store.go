// Package eventlog keeps a SQLite timeline of pipeline sessions and their
// events.
package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// Record is one stored event.
type Record struct {
	ID        int64
	SessionID string
	Type      string
	Index     int
	Text      string
	Error     string
	Elapsed   time.Duration
	CreatedAt time.Time
}

// Session is one stored session.
type Session struct {
	ID         string
	Engine     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while unfinished
	Path       string
	Sentences  int
	Failures   int
}

// Store is a SQLite-backed event timeline.
type Store struct {
	db    *sql.DB
	log   *log.Logger
	clock func() time.Time
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: logger, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    engine TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    path TEXT,
    sentences INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    sentence_index INTEGER,
    text TEXT,
    error TEXT,
    elapsed_ns INTEGER,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession records a new session.
func (s *Store) StartSession(ctx context.Context, sessionID, engine string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, engine, started_at) VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET engine=excluded.engine`,
		sessionID, engine, at.UnixNano())
	return err
}

// FinishSession stores the outcome of a session.
func (s *Store) FinishSession(ctx context.Context, sessionID, path string, sentences, failures int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET finished_at = ?, path = ?, sentences = ?, failures = ? WHERE session_id = ?`,
		at.UnixNano(), path, sentences, failures, sessionID)
	return err
}

// AppendEvent stores an event. The session must exist.
func (s *Store) AppendEvent(ctx context.Context, r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session_id, event_type, sentence_index, text, error, elapsed_ns, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Type, r.Index, r.Text, r.Error, int64(r.Elapsed), r.CreatedAt.UnixNano())
	return err
}

// ListSessionEvents returns up to limit events of a session in the order
// they were stored.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, sentence_index, text, error, elapsed_ns, created_at
		 FROM events WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r         Record
			elapsed   int64
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Type, &r.Index, &r.Text, &r.Error, &elapsed, &createdAt); err != nil {
			return nil, err
		}
		r.Elapsed = time.Duration(elapsed)
		r.CreatedAt = time.Unix(0, createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

const sessionColumns = `session_id, engine, started_at, finished_at, path, sentences, failures`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess     Session
		started  int64
		finished sql.NullInt64
		path     sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.Engine, &started, &finished, &path, &sess.Sentences, &sess.Failures); err != nil {
		return sess, err
	}
	sess.StartedAt = time.Unix(0, started)
	if finished.Valid {
		sess.FinishedAt = time.Unix(0, finished.Int64)
	}
	sess.Path = path.String
	return sess, nil
}

// Session returns a stored session.
func (s *Store) Session(ctx context.Context, sessionID string) (Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return sess, fmt.Errorf("session %s not found", sessionID)
	}
	return sess, err
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Prune deletes sessions started before cutoff, with their events.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
