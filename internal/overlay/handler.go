// Package overlay exposes the HTTP surface for dashboards: snapshot access,
// paint template administration, adapter monitoring, backgrounds, and TTS.
package overlay

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumen-overlay/backend/internal/paint"
	"github.com/lumen-overlay/backend/internal/realtime"
	"github.com/lumen-overlay/backend/internal/session"
	"github.com/lumen-overlay/backend/internal/snapshot"
	"github.com/lumen-overlay/backend/internal/tts"
	"github.com/lumen-overlay/backend/internal/twitch"
	"github.com/lumen-overlay/backend/pkg/response"
	"github.com/lumen-overlay/backend/pkg/storage"
)

// Handler wires the overlay feature endpoints.
type Handler struct {
	sessions *session.Repository
	store    snapshot.Store
	saver    *snapshot.Saver
	paints   *paint.Manager
	chat     *twitch.ChatAdapter
	follows  *twitch.FollowAdapter
	speech   *tts.Coordinator
	hub      *realtime.Hub
	s3       *storage.S3
	logger   *zap.Logger
}

// NewHandler creates the overlay handler.
func NewHandler(
	sessions *session.Repository,
	store snapshot.Store,
	saver *snapshot.Saver,
	paints *paint.Manager,
	chat *twitch.ChatAdapter,
	follows *twitch.FollowAdapter,
	speech *tts.Coordinator,
	hub *realtime.Hub,
	s3 *storage.S3,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		store:    store,
		saver:    saver,
		paints:   paints,
		chat:     chat,
		follows:  follows,
		speech:   speech,
		hub:      hub,
		s3:       s3,
		logger:   logger,
	}
}

// requireSession resolves the :key parameter to a known session.
func (h *Handler) requireSession(c *gin.Context) (string, bool) {
	key := c.Param("key")
	ok, err := h.sessions.Exists(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
		response.Internal(c, "session lookup failed")
		return "", false
	}
	if !ok {
		response.NotFound(c, "unknown session")
		return "", false
	}
	return key, true
}

// GetSnapshot handles GET /overlay/:key/snapshot.
func (h *Handler) GetSnapshot(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	snap, err := h.store.Load(c.Request.Context(), key)
	if errors.Is(err, snapshot.ErrNotFound) {
		response.OK(c, snapshot.Snapshot{})
		return
	}
	if err != nil {
		h.logger.Error("snapshot load failed", zap.String("session_key", key), zap.Error(err))
		response.ServiceUnavailable(c, "snapshot store unavailable")
		return
	}
	response.OK(c, snap)
}

// SaveSnapshot handles PUT /overlay/:key/snapshot: an explicit save request
// flushes pending debounced fields and merges any body fields directly.
func (h *Handler) SaveSnapshot(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	var partial snapshot.Snapshot
	if err := c.ShouldBindJSON(&partial); err == nil && len(partial) > 0 {
		for field, value := range partial {
			h.saver.Mark(key, field, value)
		}
	}
	h.saver.Flush(key)
	response.OK(c, gin.H{"saved": !h.saver.Unsaved(key)})
}

// GetPaintState handles GET /overlay/:key/paint/:template.
func (h *Handler) GetPaintState(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	st, ok := h.paints.State(c.Request.Context(), key, c.Param("template"))
	if !ok {
		response.NotFound(c, "unknown template")
		return
	}
	response.OK(c, st)
}

// SetActiveTemplate handles PUT /overlay/:key/paint/:template/activate.
func (h *Handler) SetActiveTemplate(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	if !h.paints.SetActiveTemplate(key, c.Param("template")) {
		response.NotFound(c, "unknown template")
		return
	}
	response.OK(c, gin.H{"active": c.Param("template")})
}

// ResetPaint handles POST /overlay/:key/paint/:template/reset.
func (h *Handler) ResetPaint(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	if !h.paints.Reset(c.Request.Context(), key, c.Param("template")) {
		response.NotFound(c, "unknown template")
		return
	}
	response.OK(c, gin.H{"reset": true})
}

// FillAllPaint handles POST /overlay/:key/paint/:template/fill-all.
func (h *Handler) FillAllPaint(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	var body struct {
		User string `json:"user"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.User == "" {
		body.User = "broadcaster"
	}
	if !h.paints.FillAll(c.Request.Context(), key, c.Param("template"), body.User) {
		response.NotFound(c, "unknown template")
		return
	}
	response.OK(c, gin.H{"filled": true})
}

// StartMonitor handles POST /overlay/:key/monitor: starts the chat and follow
// adapters for a channel. Repeating the call for the same channel is a no-op;
// a different channel replaces the running pair.
func (h *Handler) StartMonitor(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	var body struct {
		Channel       string `json:"channel"`
		BroadcasterID string `json:"broadcasterId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Channel == "" {
		response.BadRequest(c, "channel required")
		return
	}
	h.chat.Start(key, body.Channel)
	if body.BroadcasterID != "" {
		h.follows.Start(key, body.BroadcasterID)
	}
	response.OK(c, gin.H{
		"chat":   h.chat.IsActive(key),
		"follow": h.follows.IsActive(key),
	})
}

// StopMonitor handles DELETE /overlay/:key/monitor.
func (h *Handler) StopMonitor(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	h.chat.Stop(key)
	h.follows.Stop(key)
	response.NoContent(c)
}

// MonitorStatus handles GET /overlay/:key/monitor.
func (h *Handler) MonitorStatus(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	channel, _ := h.chat.Channel(key)
	response.OK(c, gin.H{
		"chat":    h.chat.IsActive(key),
		"follow":  h.follows.IsActive(key),
		"channel": channel,
		"members": h.hub.MemberCount(key),
	})
}

// BackgroundUploadURL handles POST /overlay/:key/background/upload-url:
// returns pre-signed PUT and GET URLs so the dashboard uploads directly to S3.
func (h *Handler) BackgroundUploadURL(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "background storage not configured")
		return
	}
	var body struct {
		ContentType string `json:"contentType"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ContentType == "" {
		response.BadRequest(c, "contentType required")
		return
	}
	objectKey := storage.BackgroundKey(key, body.ContentType)
	uploadURL, err := h.s3.PresignUpload(c.Request.Context(), objectKey, body.ContentType)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	getURL, err := h.s3.PresignGet(c.Request.Context(), objectKey)
	if err != nil {
		h.logger.Error("presign get failed", zap.Error(err))
		response.Internal(c, "could not presign")
		return
	}
	response.OK(c, gin.H{"uploadUrl": uploadURL, "url": getURL, "key": objectKey})
}

// EnqueueTTS handles POST /overlay/:key/tts.
func (h *Handler) EnqueueTTS(c *gin.Context) {
	key, ok := h.requireSession(c)
	if !ok {
		return
	}
	var body struct {
		Text  string  `json:"text"`
		Voice string  `json:"voice"`
		Rate  float64 `json:"rate"`
		Pitch float64 `json:"pitch"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Text == "" {
		response.BadRequest(c, "text required")
		return
	}
	item := h.speech.Enqueue(key, body.Text, body.Voice, body.Rate, body.Pitch)
	response.Created(c, gin.H{"id": item.ID, "queued": h.speech.QueueDepth(key)})
}
