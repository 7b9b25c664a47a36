// Bearer-token authentication and role gating.
//
// BearerAuth validates the Authorization header against a token verifier and
// stores the caller's identity in the Gin context under "userID" and
// "userRole". RequireRole layers coarse role checks on top for privileged
// endpoints. Both abort with the standard error envelope shape so responses
// stay consistent with the handlers package.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tavolo/go-resto-backend/internal/auth"
)

// TokenVerifier validates a bearer token and returns its claims.
// *auth.Service satisfies this interface.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Context keys under which the authenticated identity is stored.
const (
	CtxKeyUserID   = "userID"
	CtxKeyUserRole = "userRole"
)

// BearerAuth returns middleware that requires a valid "Authorization: Bearer"
// header. On success it stashes the subject and role for downstream handlers;
// on failure it aborts with 401.
func BearerAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if raw == "" || !strings.HasPrefix(raw, prefix) {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := v.Verify(strings.TrimSpace(raw[len(prefix):]))
		if err != nil || claims.Subject == "" {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		c.Set(CtxKeyUserID, claims.Subject)
		c.Set(CtxKeyUserRole, claims.Role)
		c.Next()
	}
}

// RequireRole returns middleware that aborts with 403 unless the
// authenticated caller holds one of the given roles. It must run after
// BearerAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role, _ := c.Get(CtxKeyUserRole)
		s, _ := role.(string)
		if _, ok := allowed[s]; !ok {
			abortAuth(c, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		c.Next()
	}
}

// abortAuth writes the standard error envelope without importing handlers
// (which would create an import cycle).
func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       code,
		"message":    msg,
	})
}
