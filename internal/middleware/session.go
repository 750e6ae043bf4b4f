package middleware

import (
	"context"
	"net/http"

	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/session"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
)

// Context keys set by SessionGuard.
const (
	ContextUser    = "currentUser"
	ContextSession = "currentSession"
)

// SessionResolver maps a cookie value to an identity, nil meaning anonymous.
type SessionResolver interface {
	Resolve(ctx context.Context, raw string) *session.Identity
}

// SessionGuard resolves the session cookie on every request. It never aborts:
// callers without a valid session simply proceed as anonymous.
func SessionGuard(resolver SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(cookieName)
		if ident := resolver.Resolve(c.Request.Context(), raw); ident != nil {
			c.Set(ContextUser, ident.User)
			c.Set(ContextSession, ident.Session)
		}
		c.Next()
	}
}

// RequireSession answers 401 when SessionGuard attached no user.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			util.AbortError(c, http.StatusUnauthorized, util.CodeAuth, "authentication required")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// CurrentSession returns the resolved session or nil.
func CurrentSession(c *gin.Context) *models.Session {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil
	}
	s, _ := v.(*models.Session)
	return s
}
