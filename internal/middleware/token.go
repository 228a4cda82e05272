package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumen-overlay/backend/internal/session"
	"github.com/lumen-overlay/backend/pkg/response"
)

// ControlToken returns a middleware that requires a valid control token for
// the session key in the :key route parameter. Render surfaces never pass
// through here; they only hold the session key itself.
func ControlToken(tokens *session.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		if err := tokens.Validate(parts[1], c.Param("key")); err != nil {
			response.Unauthorized(c, "invalid or expired control token")
			c.Abort()
			return
		}
		c.Next()
	}
}
