package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devcoons/software-governance-sub000/internal/sessions"
)

// SessionCookie is the cookie carrying the opaque session id.
const SessionCookie = "sg_session"

// SessionReader is the minimal interface the middleware depends on.
type SessionReader interface {
	Get(ctx context.Context, sid string) (*sessions.Record, error)
}

// SessionAuth returns a Gin middleware that resolves the session cookie
// against the store. A missing, unknown, or expired session id is rejected
// with 401; the handler never learns which of the three it was.
func SessionAuth(sm SessionReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookie)
		if err != nil || sid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		rec, err := sm.Get(c.Request.Context(), sid)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		if rec == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set("session", rec)
		c.Set("claims", rec.Claims)
		c.Next()
	}
}

// RequirePasswordChanged blocks accounts in the forced-change state from
// everything except the password-change surface itself.
func RequirePasswordChanged() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get("session")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		rec := v.(*sessions.Record)
		if rec.Claims.ForcePasswordChange {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "password change required"})
			return
		}
		c.Next()
	}
}

// SessionFromContext returns the session record set by SessionAuth.
func SessionFromContext(c *gin.Context) *sessions.Record {
	v, ok := c.Get("session")
	if !ok {
		return nil
	}
	rec, _ := v.(*sessions.Record)
	return rec
}
