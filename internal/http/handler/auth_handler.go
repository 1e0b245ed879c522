// Package handler exposes the login, callback, and session HTTP endpoints.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
	httpmiddleware "github.com/smallbiznis/dexgate/internal/http/middleware"
	appmiddleware "github.com/smallbiznis/dexgate/internal/middleware"
	authservice "github.com/smallbiznis/dexgate/internal/service/auth"
)

// AuthHandler serves the browser and API login endpoints.
type AuthHandler struct {
	service  *authservice.Service
	sessions *authservice.SessionManager
	logger   *zap.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(service *authservice.Service, sessions *authservice.SessionManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, sessions: sessions, logger: logger}
}

// Login handles GET /auth/login: start a login attempt and redirect the
// browser to the provider authorization endpoint.
func (h *AuthHandler) Login(c *gin.Context) {
	org, ok := appmiddleware.GetOrgConfig(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_tenant"})
		return
	}

	out, err := h.service.StartLogin(c.Request.Context(), org, authservice.StartLoginInput{
		ReturnURL: c.Query("return_url"),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.logger.Error("failed to start login", zap.Int64("org_id", org.OrgID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Unable to start login."})
		return
	}

	c.Redirect(http.StatusFound, out.AuthorizeURL)
}

type loginWithRequest struct {
	ReturnURL string `json:"return_url"`
}

type loginWithResponse struct {
	AuthorizeURL string `json:"authorize_url"`
}

// LoginWith handles POST /api/v2/login-with: same flow as Login but returns
// the authorization URL as JSON for SPA-driven navigation.
func (h *AuthHandler) LoginWith(c *gin.Context) {
	org, ok := appmiddleware.GetOrgConfig(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_tenant"})
		return
	}

	// An empty body is fine; only malformed JSON is rejected.
	var req loginWithRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed JSON body."})
			return
		}
	}

	out, err := h.service.StartLogin(c.Request.Context(), org, authservice.StartLoginInput{
		ReturnURL: req.ReturnURL,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.logger.Error("failed to start login", zap.Int64("org_id", org.OrgID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Unable to start login."})
		return
	}

	c.JSON(http.StatusOK, loginWithResponse{AuthorizeURL: out.AuthorizeURL})
}

// Callback handles GET /auth/callback: complete the code exchange, establish
// the session, and send the browser to its original destination.
func (h *AuthHandler) Callback(c *gin.Context) {
	org, ok := appmiddleware.GetOrgConfig(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_tenant"})
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		h.logger.Warn("provider returned callback error",
			zap.Int64("org_id", org.OrgID),
			zap.String("error", providerErr),
			zap.String("error_description", c.Query("error_description")),
		)
		h.redirectToLogin(c)
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		h.redirectToLogin(c)
		return
	}

	result, err := h.service.Callback(c.Request.Context(), org, authservice.CallbackInput{
		Code:      code,
		State:     state,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.callbackError(c, org.OrgID, err)
		return
	}

	http.SetCookie(c.Writer, result.Cookie)
	c.Redirect(http.StatusFound, result.ReturnURL)
}

// callbackError maps callback failures onto responses. Security failures all
// collapse into the same generic redirect so the response never reveals
// which check failed.
func (h *AuthHandler) callbackError(c *gin.Context, orgID int64, err error) {
	switch {
	case errors.Is(err, authdomain.ErrInvalidState),
		errors.Is(err, authdomain.ErrStateExpiredOrReplayed),
		errors.Is(err, authdomain.ErrContextMismatch),
		errors.Is(err, authdomain.ErrNonceMismatch),
		errors.Is(err, authdomain.ErrIDTokenInvalid):
		h.redirectToLogin(c)
	case errors.Is(err, authdomain.ErrTokenExchangeFailed):
		h.logger.Error("token exchange failed", zap.Int64("org_id", orgID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "error_description": "Login provider unavailable."})
	default:
		h.logger.Error("callback failed", zap.Int64("org_id", orgID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Unable to complete login."})
	}
}

func (h *AuthHandler) redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, "/auth/login?error=login_failed")
}

// Logout handles GET /auth/logout: deactivate the session and clear its
// cookie. Always succeeds from the browser's point of view.
func (h *AuthHandler) Logout(c *gin.Context) {
	org, ok := appmiddleware.GetOrgConfig(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_tenant"})
		return
	}

	if raw, err := c.Cookie(org.Session.CookieName); err == nil && raw != "" {
		if sessionID, err := authservice.VerifyCookie(raw, org.Session.SigningSecret); err == nil {
			if err := h.sessions.Invalidate(c.Request.Context(), sessionID); err != nil {
				h.logger.Warn("failed to invalidate session on logout",
					zap.Int64("org_id", org.OrgID), zap.Error(err))
			}
		}
	}

	http.SetCookie(c.Writer, h.sessions.ClearCookie(org.Session))
	c.Redirect(http.StatusFound, "/")
}

type meResponse struct {
	UserID      int64      `json:"user_id"`
	OrgID       int64      `json:"org_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Picture     string     `json:"picture,omitempty"`
	Provider    string     `json:"provider"`
	SessionID   string     `json:"session_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Me handles GET /auth/me: return the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := httpmiddleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	session, _ := httpmiddleware.GetSession(c)

	resp := meResponse{
		UserID:      user.ID,
		OrgID:       user.OrgID,
		Email:       user.Email,
		Name:        user.Name,
		DisplayName: user.DisplayName,
		Picture:     user.Picture,
		Provider:    user.AuthProvider,
		SessionID:   session.SessionID,
		ExpiresAt:   session.ExpiresAt,
	}
	if !user.LastLoginAt.IsZero() {
		resp.LastLoginAt = &user.LastLoginAt
	}
	c.JSON(http.StatusOK, resp)
}
