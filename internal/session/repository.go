package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session is one streamer's overlay session. Sessions are created on first
// dashboard visit and never deleted.
type Session struct {
	Key        string    `json:"key"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Repository handles the sessions table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new session row.
func (r *Repository) Create(ctx context.Context, key string) (*Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (session_key) VALUES ($1) RETURNING session_key, created_at, last_seen_at`,
		key).Scan(&s.Key, &s.CreatedAt, &s.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns the session for a key, or nil when unknown.
func (r *Repository) Get(ctx context.Context, key string) (*Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx,
		`SELECT session_key, created_at, last_seen_at FROM sessions WHERE session_key = $1`,
		key).Scan(&s.Key, &s.CreatedAt, &s.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Touch updates last_seen_at for a session (dashboard revisit).
func (r *Repository) Touch(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_seen_at = NOW() WHERE session_key = $1`, key)
	return err
}

// Exists reports whether a session key is known.
func (r *Repository) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM sessions WHERE session_key = $1`, key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
