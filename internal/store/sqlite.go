package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// SQLite is the Store backed by modernc.org/sqlite. It is the default for
// single-instance runs and tests.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, url string) (*SQLite, error) {
	db, err := sql.Open("sqlite", buildDSN(url))
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not open sqlite database: %w", err)
	}
	if err := migrate(ctx, db, "sqlite3", "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = "file:" + path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", path, separator, defaultBusyTimeout)
}

func (s *SQLite) SaveMessage(ctx context.Context, m Message) (Message, error) {
	m.Timestamp = m.Timestamp.UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room, username, content, created_at) VALUES (?, ?, ?, ?)`,
		m.Room, m.Username, m.Content, m.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return Message{}, fmt.Errorf("failed to read message id: %w", err)
	}
	return m, nil
}

func (s *SQLite) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, conn_id, room, is_online, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (username) DO UPDATE SET
		   conn_id = excluded.conn_id,
		   room = excluded.room,
		   is_online = excluded.is_online,
		   last_seen = excluded.last_seen`,
		u.Username, u.ConnID, u.Room, u.Online, u.LastSeen.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *SQLite) MarkUserOffline(ctx context.Context, username, connID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_online = 0, last_seen = ? WHERE username = ? AND conn_id = ?`,
		at.UTC(), username, connID)
	if err != nil {
		return fmt.Errorf("failed to mark user offline: %w", err)
	}
	return nil
}

func (s *SQLite) RecentMessages(ctx context.Context, room string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room, username, content, created_at
		 FROM messages
		 WHERE room = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Room, &m.Username, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (s *SQLite) OnlineUsers(ctx context.Context, room string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, conn_id, room, is_online, last_seen
		 FROM users
		 WHERE room = ? AND is_online = 1
		 ORDER BY username`,
		room)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.ConnID, &u.Room, &u.Online, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Close releases the underlying DB connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
