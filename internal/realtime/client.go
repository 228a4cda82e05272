package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // overlay sources run inside OBS with arbitrary origins
	},
}

// Connection roles.
const (
	RoleControl = "control"
	RoleRender  = "render"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinValidator authorizes a join directive. A control join must present a
// valid control token for the session key; a render join only needs the key
// to exist.
type JoinValidator func(ctx context.Context, sessionKey, role, token string) error

// SnapshotLoader returns the persisted catch-up state for a session as raw
// JSON, or an error (the client then falls back to component defaults).
type SnapshotLoader func(ctx context.Context, sessionKey string) (json.RawMessage, error)

// Client represents a single WebSocket connection, control or render.
// A connection belongs to at most one session at a time; it holds no session
// until the join handshake succeeds, and messages published before join are
// simply missed.
type Client struct {
	ID         string
	SessionKey string
	Role       string
	JoinedAt   time.Time
	joined     bool
	hub        *Hub
	conn       *websocket.Conn
	send       chan WSMessage
	logger     *zap.Logger
}

type joinPayload struct {
	SessionKey string `json:"sessionKey"`
	Role       string `json:"role"`
	Token      string `json:"token,omitempty"`
}

type paintCommandPayload struct {
	User     string `json:"user"`
	RegionID int    `json:"regionId"`
	Color    string `json:"color,omitempty"`
}

type ttsCompletePayload struct {
	ID string `json:"id"`
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, validate JoinValidator, loadSnapshot SnapshotLoader, loadTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:     uuid.New().String(),
			hub:    hub,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			logger: logger,
		}
		go client.writePump()
		client.readPump(validate, loadSnapshot, loadTimeout)
	}
}

func (c *Client) readPump(validate JoinValidator, loadSnapshot SnapshotLoader, loadTimeout time.Duration) {
	defer func() {
		if c.joined {
			c.hub.detach(c)
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		if msg.Event == EventJoin {
			if !c.handleJoin(msg.Data, validate, loadSnapshot, loadTimeout) {
				return
			}
			continue
		}
		if !c.joined {
			// Session-scoped traffic before join is ignored, never buffered.
			continue
		}
		c.handleMessage(msg)
	}
}

// handleJoin runs the attach handshake. Joining while already attached moves
// the connection: detach from the old session, then attach to the new one.
// Returns false when the join is rejected and the connection should close.
func (c *Client) handleJoin(data json.RawMessage, validate JoinValidator, loadSnapshot SnapshotLoader, loadTimeout time.Duration) bool {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SessionKey == "" {
		c.logger.Debug("malformed join directive", zap.String("conn_id", c.ID))
		return false
	}
	if p.Role != RoleControl {
		p.Role = RoleRender
	}
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	if validate != nil {
		if err := validate(ctx, p.SessionKey, p.Role, p.Token); err != nil {
			c.logger.Info("join rejected",
				zap.String("session_key", p.SessionKey), zap.String("role", p.Role), zap.Error(err))
			return false
		}
	}
	if c.joined {
		c.hub.detach(c)
		c.joined = false
	}
	c.SessionKey = p.SessionKey
	c.Role = p.Role
	c.JoinedAt = time.Now()

	// The snapshot reply is enqueued before attach, so it always precedes any
	// live traffic relayed to this connection.
	c.sendSnapshot(ctx, loadSnapshot)

	c.hub.attach(c)
	c.joined = true
	return true
}

// sendSnapshot delivers the catch-up state for the reconciliation protocol.
// Store failure or timeout degrades to an empty snapshot; the client falls
// back to defaults and still accepts live updates normally.
func (c *Client) sendSnapshot(ctx context.Context, loadSnapshot SnapshotLoader) {
	data := json.RawMessage("{}")
	if loadSnapshot != nil {
		if snap, err := loadSnapshot(ctx, c.SessionKey); err == nil && len(snap) > 0 {
			data = snap
		} else if err != nil {
			c.logger.Warn("snapshot load failed, sending empty",
				zap.String("session_key", c.SessionKey), zap.Error(err))
		}
	}
	select {
	case c.send <- WSMessage{Event: EventSnapshot, Data: data}:
	default:
	}
}

func (c *Client) handleMessage(msg WSMessage) {
	switch {
	case c.Role == RoleControl && IsStateTopic(msg.Event):
		c.hub.PublishExcept(c.SessionKey, msg.Event, msg.Data, c.ID)
		if c.hub.onMutation != nil {
			c.hub.onMutation(c.SessionKey, msg.Event, msg.Data)
		}
	case c.Role == RoleControl && broadcastOnly[msg.Event]:
		c.hub.PublishExcept(c.SessionKey, msg.Event, msg.Data, c.ID)
	case c.Role == RoleControl && msg.Event == TopicPaintCommand:
		var p paintCommandPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		if p.User == "" {
			p.User = "broadcaster"
		}
		if c.hub.onPaintCommand != nil {
			c.hub.onPaintCommand(c.SessionKey, p.User, p.RegionID, p.Color)
		}
	case c.Role == RoleRender && msg.Event == EventTTSComplete:
		var p ttsCompletePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		if c.hub.onTTSComplete != nil {
			c.hub.onTTSComplete(c.SessionKey, p.ID)
		}
	default:
		// ignore
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
