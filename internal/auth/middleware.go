package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"absensi/internal/session"
)

// CookieName carries the session token for browser clients.
const CookieName = "absensi_session"

const (
	ctxSession = "session"
	ctxSID     = "sid"
)

// Sessions resolves the caller's session from the cookie or a bearer token.
// It never rejects: callers without a valid token get the signed-out state.
func Sessions(m *session.Manager, signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := session.State{View: session.DefaultView}
		if tokenStr := token(c); tokenStr != "" {
			if claims, err := Parse(tokenStr, signingKey, issuer); err == nil {
				st = m.Restore(c.Request.Context(), claims.SessionID)
				c.Set(ctxSID, claims.SessionID)
			}
		}
		c.Set(ctxSession, st)
		c.Next()
	}
}

// RequireRole aborts with 401 for signed-out callers and 403 for callers whose
// role is not listed. With no roles any signed-in caller passes.
func RequireRole(roles ...session.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := Current(c)
		if !st.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}
		if len(roles) == 0 {
			c.Next()
			return
		}
		for _, r := range roles {
			if st.Identity.Role() == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// Current returns the session state resolved by Sessions.
func Current(c *gin.Context) session.State {
	if v, ok := c.Get(ctxSession); ok {
		if st, ok := v.(session.State); ok {
			return st
		}
	}
	return session.State{View: session.DefaultView}
}

// SessionID returns the session id carried by the caller's token, if any.
func SessionID(c *gin.Context) string {
	return c.GetString(ctxSID)
}

func token(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if authz != "" && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	if v, err := c.Cookie(CookieName); err == nil {
		return v
	}
	return ""
}
