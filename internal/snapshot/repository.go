package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-overlay/backend/internal/paint"
)

// Repository is the PostgreSQL-backed snapshot store: one overlay_snapshots
// row per session key, snapshot fields and paint states in JSONB columns.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a snapshot repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Load returns the full persisted snapshot, or ErrNotFound.
func (r *Repository) Load(ctx context.Context, sessionKey string) (Snapshot, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM overlay_snapshots WHERE session_key = $1`,
		sessionKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Save merges the partial snapshot into the stored row, creating it if absent.
// The merge happens inside the upsert (jsonb ||), so concurrent saves from
// different instances cannot lose each other's fields: top-level keys present
// in the partial override, everything else stays.
func (r *Repository) Save(ctx context.Context, sessionKey string, partial Snapshot) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO overlay_snapshots (session_key, data, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (session_key) DO UPDATE SET data = overlay_snapshots.data || EXCLUDED.data, updated_at = NOW()`,
		sessionKey, raw)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadPaintStates returns the persisted per-template fill states for a session.
// A session with no row yields an empty map, not an error.
func (r *Repository) LoadPaintStates(ctx context.Context, sessionKey string) (map[string]*paint.TemplateState, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT paint_states FROM overlay_snapshots WHERE session_key = $1`,
		sessionKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]*paint.TemplateState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load paint states: %w", err)
	}
	states := make(map[string]*paint.TemplateState)
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, fmt.Errorf("decode paint states: %w", err)
	}
	return states, nil
}

// SavePaintStates replaces the persisted fill states for a session.
func (r *Repository) SavePaintStates(ctx context.Context, sessionKey string, states map[string]*paint.TemplateState) error {
	raw, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("encode paint states: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO overlay_snapshots (session_key, paint_states, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (session_key) DO UPDATE SET paint_states = EXCLUDED.paint_states, updated_at = NOW()`,
		sessionKey, raw)
	if err != nil {
		return fmt.Errorf("save paint states: %w", err)
	}
	return nil
}
