// Package snapshot persists the single "current overlay state" record per
// session and owns the debounced write-through from the control side.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lumen-overlay/backend/internal/paint"
)

// ErrNotFound is returned when a session has no persisted snapshot yet.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot maps field names (topic names on the wire) to their last published
// payloads. Partial saves merge field-by-field: present fields override, absent
// fields keep their prior value.
type Snapshot map[string]json.RawMessage

// Merge applies a partial snapshot over s, overriding only the fields present
// in the partial.
func (s Snapshot) Merge(partial Snapshot) {
	for field, value := range partial {
		s[field] = value
	}
}

// Clone returns a shallow copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Store is the persistence interface for session state. The backing record
// holds at most one snapshot per session key, with no history.
type Store interface {
	Load(ctx context.Context, sessionKey string) (Snapshot, error)
	Save(ctx context.Context, sessionKey string, partial Snapshot) error
	LoadPaintStates(ctx context.Context, sessionKey string) (map[string]*paint.TemplateState, error)
	SavePaintStates(ctx context.Context, sessionKey string, states map[string]*paint.TemplateState) error
}
