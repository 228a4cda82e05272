package snapshot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-overlay/backend/pkg/metrics"
)

// TopicSaveState carries the saved/unsaved status to control clients.
const TopicSaveState = "save-state"

// DefaultQuietPeriod is how long the saver waits for a mutation burst to settle.
const DefaultQuietPeriod = time.Second

// Publisher fans a payload out to every live connection of a session.
type Publisher interface {
	Publish(sessionKey, topic string, payload interface{})
}

// SaveStatePayload is the save-state topic payload.
type SaveStatePayload struct {
	Saved bool `json:"saved"`
}

// Saver debounces snapshot write-through: control-side mutations are coalesced
// per session and written once after a quiet period, with a single write in
// flight per session. A failed write leaves the session in "unsaved" status
// (published to the dashboard) and the fields are retried on the next mutation
// or on an explicit Flush.
type Saver struct {
	store  Store
	pub    Publisher
	logger *zap.Logger
	quiet  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingSave
}

type pendingSave struct {
	fields   Snapshot
	timer    *time.Timer
	inflight bool
	unsaved  bool
}

// NewSaver creates a debounced snapshot saver.
func NewSaver(store Store, pub Publisher, quiet time.Duration, logger *zap.Logger) *Saver {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{
		store:   store,
		pub:     pub,
		logger:  logger,
		quiet:   quiet,
		pending: make(map[string]*pendingSave),
	}
}

// Mark records one mutated field for a session. Rapid marks coalesce; the
// write fires after the quiet period elapses without further marks.
func (s *Saver) Mark(sessionKey, field string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending[sessionKey]
	if p == nil {
		p = &pendingSave{fields: make(Snapshot)}
		s.pending[sessionKey] = p
	}
	p.fields[field] = append([]byte(nil), value...)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(s.quiet, func() { s.flush(sessionKey) })
}

// Flush writes any pending fields for a session immediately (explicit save).
func (s *Saver) Flush(sessionKey string) {
	s.mu.Lock()
	if p := s.pending[sessionKey]; p != nil && p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	s.mu.Unlock()
	s.flush(sessionKey)
}

// Unsaved reports whether the session's last write failed and fields are still pending.
func (s *Saver) Unsaved(sessionKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending[sessionKey]
	return p != nil && p.unsaved
}

func (s *Saver) flush(sessionKey string) {
	s.mu.Lock()
	p := s.pending[sessionKey]
	if p == nil || p.inflight || len(p.fields) == 0 {
		s.mu.Unlock()
		return
	}
	fields := p.fields
	p.fields = make(Snapshot)
	p.inflight = true
	p.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := s.store.Save(ctx, sessionKey, fields)
	cancel()

	s.mu.Lock()
	p.inflight = false
	if err != nil {
		// Put failed fields back under anything marked meanwhile; newer values win.
		for k, v := range fields {
			if _, ok := p.fields[k]; !ok {
				p.fields[k] = v
			}
		}
		wasUnsaved := p.unsaved
		p.unsaved = true
		s.mu.Unlock()
		metrics.SnapshotSaves.WithLabelValues("error").Inc()
		s.logger.Warn("snapshot save failed", zap.String("session_key", sessionKey), zap.Error(err))
		if !wasUnsaved && s.pub != nil {
			s.pub.Publish(sessionKey, TopicSaveState, SaveStatePayload{Saved: false})
		}
		return
	}
	wasUnsaved := p.unsaved
	p.unsaved = false
	more := len(p.fields) > 0
	if more && p.timer == nil {
		p.timer = time.AfterFunc(s.quiet, func() { s.flush(sessionKey) })
	}
	s.mu.Unlock()
	metrics.SnapshotSaves.WithLabelValues("ok").Inc()
	if wasUnsaved && s.pub != nil {
		s.pub.Publish(sessionKey, TopicSaveState, SaveStatePayload{Saved: true})
	}
}
