package occupancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-occupancy/pkg/tracking"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id                TEXT PRIMARY KEY,
		started_at        TIMESTAMP NOT NULL,
		max_capacity      INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS events (
		event_id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id        TEXT NOT NULL,
		kind              TEXT NOT NULL,
		offset_ms         BIGINT NOT NULL,
		occupancy         INTEGER NOT NULL,
		created_at        TIMESTAMP NOT NULL,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, event_id);
	CREATE TABLE IF NOT EXISTS contacts (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name        TEXT NOT NULL,
		last_name         TEXT NOT NULL,
		email             TEXT NOT NULL,
		phone             TEXT NOT NULL,
		role              TEXT NOT NULL,
		prefer_email      BOOLEAN NOT NULL DEFAULT 0,
		prefer_phone      BOOLEAN NOT NULL DEFAULT 0
	);
`

// SQLiteStore persists sessions and crossings in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases consistent and
	// serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, max_capacity) VALUES (?, ?, ?)`,
		sess.ID, sess.StartedAt.UTC(), sess.MaxCapacity,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMaxCapacity(ctx context.Context, sessionID string, maxCapacity int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET max_capacity = ? WHERE id = ?`, maxCapacity, sessionID)
	if err != nil {
		return fmt.Errorf("update max capacity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, kind, offset_ms, occupancy, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.SessionID, r.Kind.String(), r.Offset.Milliseconds(), r.Occupancy, r.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, max_capacity FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, max_capacity FROM sessions ORDER BY started_at DESC LIMIT 1`)
	return scanSession(row)
}

func scanSession(row *sql.Row) (Session, error) {
	var sess Session
	if err := row.Scan(&sess.ID, &sess.StartedAt, &sess.MaxCapacity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Events(ctx context.Context, sessionID string) ([]Record, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, offset_ms, occupancy, created_at FROM events
		 WHERE session_id = ? ORDER BY event_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			kind     string
			offsetMs int64
			r        = Record{SessionID: sessionID}
		)
		if err := rows.Scan(&kind, &offsetMs, &r.Occupancy, &r.At); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		switch kind {
		case tracking.PersonEntered.String():
			r.Kind = tracking.PersonEntered
		case tracking.PersonExited.String():
			r.Kind = tracking.PersonExited
		default:
			return nil, fmt.Errorf("unknown event kind %q", kind)
		}
		r.Offset = time.Duration(offsetMs) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) AddContact(ctx context.Context, c Contact) (Contact, error) {
	if err := c.Validate(); err != nil {
		return Contact{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (first_name, last_name, email, phone, role, prefer_email, prefer_phone)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.FirstName, c.LastName, c.Email, c.Phone, string(c.Role), c.PreferEmail, c.PreferPhone,
	)
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return Contact{}, fmt.Errorf("contact id: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) RemoveContact(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (s *SQLiteStore) Contacts(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, phone, role, prefer_email, prefer_phone
		 FROM contacts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		var (
			c    Contact
			role string
		)
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
			&role, &c.PreferEmail, &c.PreferPhone); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.Role = Role(role)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
