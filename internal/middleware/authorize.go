package middleware

import (
	"net/http"

	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
)

// Authorizer decides whether a role may act on a resource.
type Authorizer interface {
	Allow(role, resource, action string) (bool, error)
}

// Authorize requires a session whose role is allowed to perform action on resource.
func Authorize(az Authorizer, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			util.AbortError(c, http.StatusUnauthorized, util.CodeAuth, "authentication required")
			return
		}

		ok, err := az.Allow(user.Role.Name, resource, action)
		if err != nil {
			logging.Err(err).
				Str("role", user.Role.Name).
				Str("resource", resource).
				Str("action", action).
				Msg("authorization check failed")
			util.AbortError(c, http.StatusInternalServerError, util.CodeServerErr, "authorization failed")
			return
		}
		if !ok {
			util.AbortError(c, http.StatusForbidden, util.CodeForbidden, "insufficient permissions")
			return
		}
		c.Next()
	}
}
