package paint

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// TopicPaintState is the broadcast topic carrying full template state.
const TopicPaintState = "paint-state"

// Store persists per-template fill states, keyed by template id within a session.
type Store interface {
	LoadPaintStates(ctx context.Context, sessionKey string) (map[string]*TemplateState, error)
	SavePaintStates(ctx context.Context, sessionKey string, states map[string]*TemplateState) error
}

// Publisher fans a payload out to every live connection of a session.
type Publisher interface {
	Publish(sessionKey, topic string, payload interface{})
}

// StatePayload is the paint-state topic payload.
type StatePayload struct {
	TemplateID string         `json:"templateId"`
	State      *TemplateState `json:"state"`
}

// Manager owns the fill states of all sessions: per-session serialization,
// lazy load from the store, write-through after accepted mutations, and
// paint-state broadcasts on change.
type Manager struct {
	engine *Engine
	store  Store
	pub    Publisher
	logger *zap.Logger

	mu     sync.Mutex
	states map[string]map[string]*TemplateState // sessionKey -> templateID -> state
	active map[string]string                    // sessionKey -> active template id
}

// NewManager creates a paint manager.
func NewManager(engine *Engine, store Store, pub Publisher, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		engine: engine,
		store:  store,
		pub:    pub,
		logger: logger,
		states: make(map[string]map[string]*TemplateState),
		active: make(map[string]string),
	}
}

// SetActiveTemplate selects which template chat commands apply to for a session.
func (m *Manager) SetActiveTemplate(sessionKey, templateID string) bool {
	tpl, ok := LookupTemplate(templateID)
	if !ok {
		return false
	}
	m.mu.Lock()
	m.active[sessionKey] = tpl.ID
	m.mu.Unlock()
	return true
}

// ActiveTemplate returns the session's active template id ("heart" by default).
func (m *Manager) ActiveTemplate(sessionKey string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.active[sessionKey]; ok {
		return id
	}
	return "heart"
}

// HandleChat parses a chat line and, on a matching !paint command, applies it
// to the session's active template. Unrecognized grammar is ignored.
func (m *Manager) HandleChat(ctx context.Context, sessionKey, user, text string) {
	cmd, ok := ParseCommand(text)
	if !ok {
		return
	}
	m.ApplyCommand(ctx, sessionKey, m.ActiveTemplate(sessionKey), user, cmd)
}

// ApplyCommand runs one paint command against a template. On an accepted
// mutation the new state is persisted and broadcast to the session.
func (m *Manager) ApplyCommand(ctx context.Context, sessionKey, templateID, user string, cmd Command) {
	tpl, ok := LookupTemplate(templateID)
	if !ok {
		return
	}
	m.mu.Lock()
	st := m.stateLocked(ctx, sessionKey, tpl)
	changed := m.engine.Apply(tpl, st, user, cmd)
	var snapshot map[string]*TemplateState
	if changed {
		snapshot = m.cloneSessionLocked(sessionKey)
	}
	m.mu.Unlock()
	if changed {
		m.persistAndPublish(ctx, sessionKey, tpl.ID, snapshot)
	}
}

// FillAll fills every region of a template for the issuing identity, bypassing cooldown.
func (m *Manager) FillAll(ctx context.Context, sessionKey, templateID, user string) bool {
	tpl, ok := LookupTemplate(templateID)
	if !ok {
		return false
	}
	m.mu.Lock()
	st := m.stateLocked(ctx, sessionKey, tpl)
	m.engine.FillAll(tpl, st, user)
	snapshot := m.cloneSessionLocked(sessionKey)
	m.mu.Unlock()
	m.persistAndPublish(ctx, sessionKey, tpl.ID, snapshot)
	return true
}

// Reset replaces a template's state with a brand-new all-unfilled one.
// Other templates of the session keep their history.
func (m *Manager) Reset(ctx context.Context, sessionKey, templateID string) bool {
	tpl, ok := LookupTemplate(templateID)
	if !ok {
		return false
	}
	m.mu.Lock()
	m.stateLocked(ctx, sessionKey, tpl) // force lazy load so other templates survive the save
	m.states[sessionKey][tpl.ID] = m.engine.NewState(tpl)
	snapshot := m.cloneSessionLocked(sessionKey)
	m.mu.Unlock()
	m.persistAndPublish(ctx, sessionKey, tpl.ID, snapshot)
	return true
}

// State returns a copy of a template's current state for read-only use
// (HTTP GET); callers serialize it outside the manager lock.
func (m *Manager) State(ctx context.Context, sessionKey, templateID string) (*TemplateState, bool) {
	tpl, ok := LookupTemplate(templateID)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(ctx, sessionKey, tpl).Clone(), true
}

// stateLocked returns the session's state for tpl, loading the session's
// persisted states on first touch. Callers hold m.mu.
func (m *Manager) stateLocked(ctx context.Context, sessionKey string, tpl *Template) *TemplateState {
	session := m.states[sessionKey]
	if session == nil {
		session = make(map[string]*TemplateState)
		if m.store != nil {
			loaded, err := m.store.LoadPaintStates(ctx, sessionKey)
			if err != nil {
				m.logger.Warn("load paint states failed, starting fresh",
					zap.String("session_key", sessionKey), zap.Error(err))
			} else {
				for id, st := range loaded {
					session[id] = st
				}
			}
		}
		m.states[sessionKey] = session
	}
	st := session[tpl.ID]
	if st == nil {
		st = m.engine.NewState(tpl)
		session[tpl.ID] = st
	}
	return st
}

// cloneSessionLocked deep-copies the session states for persistence and
// publishing outside the lock. The live states keep mutating under m.mu, so
// the copy must not share Fills maps with them.
func (m *Manager) cloneSessionLocked(sessionKey string) map[string]*TemplateState {
	out := make(map[string]*TemplateState, len(m.states[sessionKey]))
	for id, st := range m.states[sessionKey] {
		out[id] = st.Clone()
	}
	return out
}

func (m *Manager) persistAndPublish(ctx context.Context, sessionKey, templateID string, states map[string]*TemplateState) {
	if m.store != nil {
		if err := m.store.SavePaintStates(ctx, sessionKey, states); err != nil {
			m.logger.Warn("save paint states failed",
				zap.String("session_key", sessionKey), zap.Error(err))
		}
	}
	if m.pub != nil {
		m.pub.Publish(sessionKey, TopicPaintState, StatePayload{
			TemplateID: templateID,
			State:      states[templateID],
		})
	}
}
