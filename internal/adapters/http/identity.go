package http

import (
	"net/http"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	userHeader     = "X-User-ID"
	sessionUserKey = "user"
	ctxUserKey     = "user_id"
)

// RequireUser resolves the caller from X-User-ID, falling back to the id
// remembered in the cookie session. Tokens are checked upstream.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)

		if raw := c.GetHeader(userHeader); raw != "" {
			u, err := domain.NewUser(raw)
			if err != nil || u.ID == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
				return
			}
			if sess.Get(sessionUserKey) != string(u.ID) {
				sess.Set(sessionUserKey, string(u.ID))
				if err := sess.Save(); err != nil {
					log.Warn().Str("module", "adapters.http").Err(err).Msg("session save")
				}
			}
			c.Set(ctxUserKey, u.ID)
			c.Next()
			return
		}

		if id, ok := sess.Get(sessionUserKey).(string); ok && id != "" {
			c.Set(ctxUserKey, domain.UserID(id))
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user id"})
	}
}

func currentUser(c *gin.Context) domain.UserID {
	id, _ := c.Get(ctxUserKey)
	u, _ := id.(domain.UserID)
	return u
}
