// Package history persists relayed chat messages in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Message is one relayed chat line.
type Message struct {
	ID     int64
	ConnID uint64
	Name   string
	Text   string
	At     time.Time
}

// Store records messages in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs the schema
// migrations. ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conn_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_name ON messages(name);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts m and returns its row ID. A zero At is stamped with the
// current time.
func (s *Store) Record(ctx context.Context, m Message) (int64, error) {
	if m.At.IsZero() {
		m.At = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conn_id, name, text, created_at) VALUES (?, ?, ?, ?)`,
		int64(m.ConnID), m.Name, m.Text, m.At.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("record message: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit of the newest messages, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conn_id, name, text, created_at FROM (
			SELECT * FROM messages ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m      Message
			connID int64
			nanos  int64
		)
		if err := rows.Scan(&m.ID, &connID, &m.Name, &m.Text, &nanos); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ConnID = uint64(connID)
		m.At = time.Unix(0, nanos)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns the number of stored messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
