package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/atelierdesign/site-chat/internal/model/chat"
)

// SQLiteStore persists transcripts in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// SQLiteDSNForFile builds a DSN for a database file at path.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

// NewSQLiteStore opens dsn and creates the schema if needed.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: open")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
		  session_id TEXT PRIMARY KEY,
		  user_id TEXT NOT NULL,
		  created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_entries (
		  seq INTEGER PRIMARY KEY AUTOINCREMENT,
		  entry_id TEXT NOT NULL UNIQUE,
		  session_id TEXT NOT NULL REFERENCES chat_sessions(session_id),
		  sender TEXT NOT NULL,
		  content TEXT NOT NULL,
		  created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chat_entries_by_session
		  ON chat_entries(session_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "sqlite store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session chat.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_id, user_id, created_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`, session.ID, session.UserID, session.CreatedAt.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite store: create session")
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var (
		session   chat.Session
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, created_at_ms
		FROM chat_sessions
		WHERE session_id = ?
	`, sessionID).Scan(&session.ID, &session.UserID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, errors.Wrap(err, "sqlite store: get session")
	}
	session.CreatedAt = time.UnixMilli(createdAt).UTC()
	return session, nil
}

func (s *SQLiteStore) AppendEntry(ctx context.Context, entry chat.Entry) error {
	if _, err := s.GetSession(ctx, entry.SessionID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_entries (entry_id, session_id, sender, content, created_at_ms)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.SessionID, entry.Sender, entry.Content, entry.CreatedAt.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite store: append entry")
	}
	return nil
}

func (s *SQLiteStore) ListEntries(ctx context.Context, sessionID string) ([]chat.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, session_id, sender, content, created_at_ms
		FROM chat_entries
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: list entries")
	}
	defer rows.Close()

	entries := make([]chat.Entry, 0, 16)
	for rows.Next() {
		var (
			entry     chat.Entry
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Sender, &entry.Content, &createdAt); err != nil {
			return nil, errors.Wrap(err, "sqlite store: scan entry")
		}
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite store: iterate entries")
	}
	return entries, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
