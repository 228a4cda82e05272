package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/lumen-overlay/backend/pkg/metrics"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// MutationSink receives accepted control-side state mutations for write-through.
type MutationSink func(sessionKey, topic string, payload json.RawMessage)

// PaintCommandHandler receives dashboard-issued paint commands.
type PaintCommandHandler func(sessionKey, user string, regionID int, colorToken string)

// TTSCompleteHandler receives playback completion signals from render clients.
type TTSCompleteHandler func(sessionKey, itemID string)

// SessionEmptyHandler is invoked after a session's last connection detaches,
// so session-scoped resources (chat connection, follow poller) get released.
type SessionEmptyHandler func(sessionKey string)

// RedisPublisher publishes session events for cross-instance broadcast.
type RedisPublisher interface {
	PublishSessionEvent(sessionKey, topic string, payload []byte) error
}

// RedisSubscriber subscribes to a session's channel and invokes handler for
// events published by other instances.
type RedisSubscriber interface {
	SubscribeSession(sessionKey string, handler func(topic string, payload []byte)) (cancel func(), err error)
}

// Hub is the session registry and broadcast fabric: it tracks which
// connections belong to which session key and fans messages out to all of
// them, best-effort. Delivery to one member never blocks or fails another.
type Hub struct {
	sessions map[string]map[string]*Client // sessionKey -> connID -> client
	subs     map[string]func()             // cancel Redis subscription per session
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber

	onMutation     MutationSink
	onPaintCommand PaintCommandHandler
	onTTSComplete  TTSCompleteHandler
	onSessionEmpty SessionEmptyHandler
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetMutationSink sets the callback for accepted control-side mutations.
func (h *Hub) SetMutationSink(fn MutationSink) { h.onMutation = fn }

// SetPaintCommandHandler sets the callback for dashboard paint commands.
func (h *Hub) SetPaintCommandHandler(fn PaintCommandHandler) { h.onPaintCommand = fn }

// SetTTSCompleteHandler sets the callback for render-side playback completion.
func (h *Hub) SetTTSCompleteHandler(fn TTSCompleteHandler) { h.onTTSComplete = fn }

// SetSessionEmptyHandler sets the callback for last-member detach.
func (h *Hub) SetSessionEmptyHandler(fn SessionEmptyHandler) { h.onSessionEmpty = fn }

// attach adds a joined client to its session. Starts the Redis subscription
// for the session when the first member joins.
func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	first := h.sessions[c.SessionKey] == nil
	if first {
		h.sessions[c.SessionKey] = make(map[string]*Client)
	}
	h.sessions[c.SessionKey][c.ID] = c
	h.mu.Unlock()

	// Subscribing does Redis I/O; it must not run under h.mu or a slow Redis
	// stalls every publish and join on the hub.
	if first && h.redisSub != nil {
		h.subscribeSession(c.SessionKey)
	}
	metrics.ConnectionsActive.WithLabelValues(c.Role).Inc()
	h.logger.Debug("client joined session",
		zap.String("conn_id", c.ID), zap.String("session_key", c.SessionKey), zap.String("role", c.Role))
}

// subscribeSession installs the cross-instance subscription for a session.
// Drops the subscription if the session emptied (or another attach won the
// install race) while the subscribe round trip was in flight.
func (h *Hub) subscribeSession(key string) {
	cancel, err := h.redisSub.SubscribeSession(key, func(topic string, payload []byte) {
		h.deliverLocal(key, topic, payload, "")
	})
	if err != nil {
		h.logger.Warn("session redis subscription failed", zap.String("session_key", key), zap.Error(err))
		return
	}
	h.mu.Lock()
	_, installed := h.subs[key]
	alive := h.sessions[key] != nil
	if !installed && alive {
		h.subs[key] = cancel
	}
	h.mu.Unlock()
	if installed || !alive {
		cancel()
	}
}

// detach removes a client from its session. Safe to call concurrently with an
// in-progress publish: the client's send channel stays valid, delivery to it
// just stops mattering. Cancels the Redis subscription when the last member leaves.
func (h *Hub) detach(c *Client) {
	emptied := false
	h.mu.Lock()
	if m, ok := h.sessions[c.SessionKey]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			metrics.ConnectionsActive.WithLabelValues(c.Role).Dec()
		}
		if len(m) == 0 {
			delete(h.sessions, c.SessionKey)
			if cancel, ok := h.subs[c.SessionKey]; ok {
				cancel()
				delete(h.subs, c.SessionKey)
			}
			emptied = true
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left session",
		zap.String("conn_id", c.ID), zap.String("session_key", c.SessionKey))
	// Outside the lock: the handler stops adapters, whose goroutines may be
	// mid-publish and need the read lock to exit.
	if emptied && h.onSessionEmpty != nil {
		h.onSessionEmpty(c.SessionKey)
	}
}

// Publish delivers payload to every live connection of the session and
// propagates it to other instances via Redis. Best-effort: no confirmation,
// no retry, never blocks the caller.
func (h *Hub) Publish(sessionKey, topic string, payload interface{}) {
	h.PublishExcept(sessionKey, topic, payload, "")
}

// PublishExcept is Publish minus one local connection (usually the sender).
func (h *Hub) PublishExcept(sessionKey, topic string, payload interface{}, excludeConnID string) {
	data, err := marshalPayload(payload)
	if err != nil {
		h.logger.Warn("publish payload marshal failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	metrics.MessagesPublished.WithLabelValues(topic).Inc()
	h.deliverLocal(sessionKey, topic, data, excludeConnID)
	if h.redis != nil {
		if err := h.redis.PublishSessionEvent(sessionKey, topic, data); err != nil {
			h.logger.Warn("redis publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// deliverLocal fans a message out to local members of the session. A member
// with a full send buffer is skipped; a dead member is cleaned up by its own
// read loop, never by the publisher.
func (h *Hub) deliverLocal(sessionKey, topic string, data []byte, excludeConnID string) {
	msg := WSMessage{Event: topic, Data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions[sessionKey]))
	for id, c := range h.sessions[sessionKey] {
		if id == excludeConnID {
			continue
		}
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			metrics.MessagesDropped.Inc()
		}
	}
}

// Members returns the connection ids currently attached to a session.
func (h *Hub) Members(sessionKey string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions[sessionKey]))
	for id := range h.sessions[sessionKey] {
		ids = append(ids, id)
	}
	return ids
}

// MemberCount returns the number of connected clients in a session.
func (h *Hub) MemberCount(sessionKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionKey])
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
