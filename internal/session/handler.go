package session

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumen-overlay/backend/pkg/response"
)

// Handler exposes session creation and lookup.
type Handler struct {
	repo   *Repository
	tokens *TokenService
	logger *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(repo *Repository, tokens *TokenService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, tokens: tokens, logger: logger}
}

// Create handles POST /sessions: mints a new session key and its control token.
func (h *Handler) Create(c *gin.Context) {
	key, err := NewKey()
	if err != nil {
		response.Internal(c, "could not create session")
		return
	}
	s, err := h.repo.Create(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		response.Internal(c, "could not create session")
		return
	}
	token, err := h.tokens.Generate(s.Key)
	if err != nil {
		h.logger.Error("mint control token failed", zap.Error(err))
		response.Internal(c, "could not create session")
		return
	}
	response.Created(c, gin.H{"session": s, "controlToken": token})
}

// Get handles GET /sessions/:key: validates an existing key on dashboard revisit.
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")
	s, err := h.repo.Get(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("load session failed", zap.Error(err))
		response.Internal(c, "could not load session")
		return
	}
	if s == nil {
		response.NotFound(c, "unknown session")
		return
	}
	_ = h.repo.Touch(c.Request.Context(), key)
	response.OK(c, s)
}
