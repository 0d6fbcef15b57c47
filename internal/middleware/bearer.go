package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/response"
)

const (
	// ContextKeySession is the Gin context key for the caller's provider session.
	ContextKeySession = "session"
)

// RequireBearer reads the provider access token from the Authorization
// header and stores it as a session for the handler. The token is not
// verified here; the provider rejects forged tokens when it is used.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		session := &backend.Session{AccessToken: token, TokenType: "bearer"}
		if session.UserID() == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if session.Expired(time.Now()) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}

		c.Set(ContextKeySession, session)
		c.Next()
	}
}

// GetSession retrieves the session stored by RequireBearer.
func GetSession(c *gin.Context) *backend.Session {
	val, exists := c.Get(ContextKeySession)
	if !exists {
		return nil
	}
	session, ok := val.(*backend.Session)
	if !ok {
		return nil
	}
	return session
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
