package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/smallbiznis/dexgate/internal/domain"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
	"github.com/smallbiznis/dexgate/internal/repository"
)

// SessionManager creates, verifies, and extends user sessions and their
// signed cookies.
type SessionManager struct {
	repo   repository.SessionRepository
	logger *zap.Logger
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(repo repository.SessionRepository, logger *zap.Logger) *SessionManager {
	return &SessionManager{repo: repo, logger: logger}
}

// Create persists a new session for userID and returns it with its signed
// cookie.
func (m *SessionManager) Create(ctx context.Context, org domain.OrgAuthConfig, userID int64, ipAddress, userAgent string) (domain.UserSession, *http.Cookie, error) {
	sessionID, err := secureRandomString(32)
	if err != nil {
		return domain.UserSession{}, nil, fmt.Errorf("generate session id: %w", err)
	}
	sessionID = "ses_" + sessionID

	now := time.Now().UTC()
	session := domain.UserSession{
		SessionID:      sessionID,
		UserID:         userID,
		OrgID:          org.OrgID,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		IsActive:       true,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(org.Session.MaxAgeSeconds) * time.Second),
		LastActivityAt: now,
	}
	if err := m.repo.Create(ctx, session); err != nil {
		return domain.UserSession{}, nil, fmt.Errorf("%w: create session: %v", authdomain.ErrPersistence, err)
	}

	return session, m.IssueCookie(org.Session, sessionID), nil
}

// SignCookie produces the cookie wire value "{session_id}.{hex signature}".
func SignCookie(sessionID, secret string) string {
	return sessionID + "." + cookieSignature(sessionID, secret)
}

// VerifyCookie extracts the session id from a signed cookie value. Any
// malformation or signature mismatch yields ErrInvalidCookie; the two cases
// are never distinguished to the client.
func VerifyCookie(value, secret string) (string, error) {
	idx := strings.LastIndex(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", authdomain.ErrInvalidCookie
	}
	sessionID, signature := value[:idx], value[idx+1:]
	expected := cookieSignature(sessionID, secret)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", authdomain.ErrInvalidCookie
	}
	return sessionID, nil
}

// IssueCookie builds the session cookie per the org cookie policy.
func (m *SessionManager) IssueCookie(cfg domain.SessionConfig, sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    SignCookie(sessionID, cfg.SigningSecret),
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   int(cfg.MaxAgeSeconds),
		Secure:   cfg.Secure,
		HttpOnly: cfg.HTTPOnly,
		SameSite: sameSiteFromString(cfg.SameSite),
	}
}

// ClearCookie builds an expired cookie that removes the session cookie.
func (m *SessionManager) ClearCookie(cfg domain.SessionConfig) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   -1,
		Secure:   cfg.Secure,
		HttpOnly: cfg.HTTPOnly,
		SameSite: sameSiteFromString(cfg.SameSite),
	}
}

// LoadActive returns the session when it is active and unexpired. Missing,
// deactivated, and expired sessions all surface as ErrSessionExpired.
func (m *SessionManager) LoadActive(ctx context.Context, sessionID string) (domain.UserSession, error) {
	session, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserSession{}, authdomain.ErrSessionExpired
		}
		return domain.UserSession{}, fmt.Errorf("%w: load session: %v", authdomain.ErrPersistence, err)
	}
	if !session.IsActive || !session.ExpiresAt.After(time.Now()) {
		return domain.UserSession{}, authdomain.ErrSessionExpired
	}
	return session, nil
}

// MaybeExtend applies sliding expiration: when extension is enabled and the
// elapsed fraction of the session lifetime has reached the configured
// threshold, the expiry is reset to a full max age from now. Below the
// threshold nothing is written, which amortizes expiration updates.
func (m *SessionManager) MaybeExtend(ctx context.Context, session domain.UserSession, cfg domain.SessionConfig) (domain.UserSession, error) {
	if !cfg.ExtensionEnabled {
		return session, nil
	}
	now := time.Now().UTC()
	lifetime := session.ExpiresAt.Sub(session.CreatedAt)
	if lifetime <= 0 {
		return session, nil
	}
	elapsed := now.Sub(session.CreatedAt)
	if float64(elapsed)/float64(lifetime) < cfg.ExtensionThreshold {
		return session, nil
	}

	session.ExpiresAt = now.Add(time.Duration(cfg.MaxAgeSeconds) * time.Second)
	session.LastActivityAt = now
	if err := m.repo.ExtendExpiry(ctx, session.SessionID, session.ExpiresAt, session.LastActivityAt); err != nil {
		return domain.UserSession{}, fmt.Errorf("%w: extend session: %v", authdomain.ErrPersistence, err)
	}

	m.logger.Debug("session extended",
		zap.String("session_id", session.SessionID),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// Touch records request activity without changing the expiry.
func (m *SessionManager) Touch(ctx context.Context, sessionID string) {
	if err := m.repo.Touch(ctx, sessionID, time.Now().UTC()); err != nil {
		m.logger.Warn("failed to touch session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Invalidate deactivates the session (logout).
func (m *SessionManager) Invalidate(ctx context.Context, sessionID string) error {
	if err := m.repo.Invalidate(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: invalidate session: %v", authdomain.ErrPersistence, err)
	}
	return nil
}

// InvalidateAllForUser deactivates every session owned by userID.
func (m *SessionManager) InvalidateAllForUser(ctx context.Context, userID int64) error {
	if err := m.repo.InvalidateAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: invalidate user sessions: %v", authdomain.ErrPersistence, err)
	}
	return nil
}

func cookieSignature(sessionID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
