package twitch

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumen-overlay/backend/internal/paint"
)

// TopicChatMessage is the broadcast topic for inbound chat lines.
const TopicChatMessage = "chat-message"

// ChatMessagePayload is the chat-message topic payload.
type ChatMessagePayload struct {
	User        string `json:"user"`
	DisplayName string `json:"displayName,omitempty"`
	Text        string `json:"text"`
	Color       string `json:"color,omitempty"`
	Role        string `json:"role"`
	At          int64  `json:"at"`
}

// ChatAdapter maintains one anonymous IRC-over-WebSocket connection to a
// Twitch channel per monitored session, publishing chat-message events and
// feeding !paint commands into the region-fill engine.
type ChatAdapter struct {
	chatURL  string
	pub      Publisher
	paints   *paint.Manager
	logger   *zap.Logger
	registry *Registry
}

// NewChatAdapter creates the chat adapter.
func NewChatAdapter(chatURL string, pub Publisher, paints *paint.Manager, logger *zap.Logger) *ChatAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &ChatAdapter{chatURL: chatURL, pub: pub, paints: paints, logger: logger}
	a.registry = NewRegistry(KindChat, a.run, logger)
	return a
}

// Start begins monitoring a channel's chat for the session.
func (a *ChatAdapter) Start(sessionKey, channel string) {
	a.registry.Start(sessionKey, strings.ToLower(strings.TrimPrefix(channel, "#")))
}

// Stop stops monitoring for the session, closing the connection before returning.
func (a *ChatAdapter) Stop(sessionKey string) { a.registry.Stop(sessionKey) }

// IsActive reports whether the session has a live chat connection.
func (a *ChatAdapter) IsActive(sessionKey string) bool { return a.registry.IsActive(sessionKey) }

// Channel returns the monitored channel for the session, if active.
func (a *ChatAdapter) Channel(sessionKey string) (string, bool) { return a.registry.Target(sessionKey) }

// StopAll stops every chat connection (process shutdown).
func (a *ChatAdapter) StopAll() { a.registry.StopAll() }

// run reconnects with backoff for as long as the handle is active. Connection
// drops are routine; the adapter is never torn down on error.
func (a *ChatAdapter) run(ctx context.Context, sessionKey, channel string) {
	backoff := time.Second
	for ctx.Err() == nil {
		start := time.Now()
		err := a.connectOnce(ctx, sessionKey, channel)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > 30*time.Second {
			backoff = time.Second
		}
		a.logger.Warn("chat connection lost, reconnecting",
			zap.String("session_key", sessionKey), zap.String("channel", channel),
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// connectOnce dials, authenticates anonymously, joins the channel, and reads
// until the connection drops or ctx is cancelled.
func (a *ChatAdapter) connectOnce(ctx context.Context, sessionKey, channel string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.chatURL, nil)
	if err != nil {
		return fmt.Errorf("dial chat: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the handle is stopped.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	nick := fmt.Sprintf("justinfan%d", 10000+rand.Intn(80000))
	for _, line := range []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership",
		"NICK " + nick,
		"JOIN #" + channel,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
	}
	a.logger.Info("chat connected", zap.String("session_key", sessionKey), zap.String("channel", channel))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, line := range strings.Split(string(raw), "\r\n") {
			if line == "" {
				continue
			}
			a.handleLine(ctx, conn, sessionKey, line)
		}
	}
}

func (a *ChatAdapter) handleLine(ctx context.Context, conn *websocket.Conn, sessionKey, line string) {
	msg := parseIRC(line)
	switch msg.command {
	case "PING":
		_ = conn.WriteMessage(websocket.TextMessage, []byte("PONG :"+msg.text))
	case "PRIVMSG":
		user := strings.ToLower(msg.tags["display-name"])
		if user == "" {
			user = msg.sender()
		}
		payload := ChatMessagePayload{
			User:        user,
			DisplayName: msg.tags["display-name"],
			Text:        msg.text,
			Color:       msg.tags["color"],
			Role:        classifyRole(msg.tags),
			At:          time.Now().Unix(),
		}
		a.pub.Publish(sessionKey, TopicChatMessage, payload)
		if a.paints != nil {
			a.paints.HandleChat(ctx, sessionKey, user, msg.text)
		}
	}
}
