package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/dexgate/internal/domain"
	appmiddleware "github.com/smallbiznis/dexgate/internal/middleware"
	"github.com/smallbiznis/dexgate/internal/repository"
	authservice "github.com/smallbiznis/dexgate/internal/service/auth"
)

const (
	sessionContextKey = "userSession"
	userContextKey    = "sessionUser"
)

// Session authenticates requests with the org session cookie.
type Session struct {
	Sessions *authservice.SessionManager
	Users    repository.UserRepository
}

// Require validates the session cookie, applies sliding expiration, and
// attaches the session and user to the gin context. Invalid cookies and
// expired sessions are indistinguishable in the response.
func (m *Session) Require(c *gin.Context) {
	org, ok := appmiddleware.GetOrgConfig(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_tenant", "error_description": "Org missing."})
		return
	}

	raw, err := c.Cookie(org.Session.CookieName)
	if err != nil || raw == "" {
		m.unauthorized(c)
		return
	}

	sessionID, err := authservice.VerifyCookie(raw, org.Session.SigningSecret)
	if err != nil {
		m.unauthorized(c)
		return
	}

	session, err := m.Sessions.LoadActive(c.Request.Context(), sessionID)
	if err != nil {
		m.unauthorized(c)
		return
	}
	// Sessions never cross tenants even when cookie scopes overlap.
	if session.OrgID != org.OrgID {
		m.unauthorized(c)
		return
	}

	session, err = m.Sessions.MaybeExtend(c.Request.Context(), session, org.Session)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	m.Sessions.Touch(c.Request.Context(), session.SessionID)

	user, err := m.Users.GetByID(c.Request.Context(), org.OrgID, session.UserID)
	if err != nil {
		m.unauthorized(c)
		return
	}

	c.Set(sessionContextKey, session)
	c.Set(userContextKey, user)
	c.Next()
}

func (m *Session) unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Sign in required."})
}

// GetSession returns the authenticated session attached by Require.
func GetSession(c *gin.Context) (domain.UserSession, bool) {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return domain.UserSession{}, false
	}
	session, ok := value.(domain.UserSession)
	return session, ok
}

// GetUser returns the authenticated user attached by Require.
func GetUser(c *gin.Context) (domain.User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}
