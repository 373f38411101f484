// Package store persists chat messages and user presence for the history
// and presence endpoints. The relay core only writes through it.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
)

// ErrUnsupportedURL is returned by Open for URLs with an unknown scheme.
var ErrUnsupportedURL = errors.New("unsupported database url")

//go:embed migrations/*/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

// Message is one persisted chat message.
type Message struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// User is the persisted presence row of a username.
type User struct {
	Username string    `json:"username"`
	ConnID   string    `json:"socketId"`
	Room     string    `json:"room"`
	Online   bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// Store is the durable store the gateway writes to.
type Store interface {
	// SaveMessage stores m and returns it with its ID set.
	SaveMessage(ctx context.Context, m Message) (Message, error)
	// UpsertUser inserts or replaces the row keyed by u.Username.
	UpsertUser(ctx context.Context, u User) error
	// MarkUserOffline flips username offline only while connID is the
	// connection stored for it.
	MarkUserOffline(ctx context.Context, username, connID string, at time.Time) error
	// RecentMessages returns up to limit newest messages of room, oldest
	// first.
	RecentMessages(ctx context.Context, room string, limit int) ([]Message, error)
	OnlineUsers(ctx context.Context, room string) ([]User, error)
	Close() error
}

// Open connects to the database named by url and migrates it. postgres://
// and postgresql:// URLs use PostgreSQL; sqlite://, file: and :memory: use
// SQLite.
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return OpenPostgres(ctx, url)
	case strings.HasPrefix(url, "sqlite://"),
		strings.HasPrefix(url, "file:"),
		strings.HasPrefix(url, ":memory:"):
		return OpenSQLite(ctx, url)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, url)
	}
}

func migrate(ctx context.Context, db *sql.DB, dialect, dir string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect %s: %w", dialect, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
