package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Postgres is the Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("could not connect to the postgresql database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not reach the postgresql database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrate(ctx, db, "postgres", "migrations/postgres")
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) SaveMessage(ctx context.Context, m Message) (Message, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (room, username, content, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		m.Room, m.Username, m.Content, m.Timestamp.UTC())
	if err := row.Scan(&m.ID, &m.Timestamp); err != nil {
		return Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	m.Timestamp = m.Timestamp.UTC()
	return m, nil
}

func (s *Postgres) UpsertUser(ctx context.Context, u User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, conn_id, room, is_online, last_seen)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (username) DO UPDATE SET
		   conn_id = EXCLUDED.conn_id,
		   room = EXCLUDED.room,
		   is_online = EXCLUDED.is_online,
		   last_seen = EXCLUDED.last_seen`,
		u.Username, u.ConnID, u.Room, u.Online, u.LastSeen.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *Postgres) MarkUserOffline(ctx context.Context, username, connID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET is_online = FALSE, last_seen = $3
		 WHERE username = $1 AND conn_id = $2`,
		username, connID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark user offline: %w", err)
	}
	return nil
}

func (s *Postgres) RecentMessages(ctx context.Context, room string, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, room, username, content, created_at
		 FROM messages
		 WHERE room = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.Room, &m.Username, &m.Content, &m.Timestamp)
		m.Timestamp = m.Timestamp.UTC()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan messages: %w", err)
	}
	reverse(msgs)
	return msgs, nil
}

func (s *Postgres) OnlineUsers(ctx context.Context, room string) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT username, conn_id, room, is_online, last_seen
		 FROM users
		 WHERE room = $1 AND is_online
		 ORDER BY username`,
		room)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		var u User
		err := row.Scan(&u.Username, &u.ConnID, &u.Room, &u.Online, &u.LastSeen)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return users, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
