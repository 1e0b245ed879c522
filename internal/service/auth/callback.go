package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/dexgate/internal/adapter/dex"
	"github.com/smallbiznis/dexgate/internal/domain"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
	"github.com/smallbiznis/dexgate/internal/signedstate"
)

// CallbackInput carries the provider redirect parameters and the request
// context of the caller presenting them.
type CallbackInput struct {
	Code      string
	State     string
	ClientIP  string
	UserAgent string
}

// CallbackResult is the outcome of a completed callback.
type CallbackResult struct {
	User      domain.User
	Session   domain.UserSession
	ReturnURL string
	Cookie    *http.Cookie
}

// Callback drives the post-redirect state machine: verify the signed state,
// consume the cached auth state, check the request context, exchange the
// code, verify the ID token and nonce, upsert the user, and mint a session.
// Every transition has a typed error exit; any failure terminates the
// attempt and the user must start a fresh login.
func (s *Service) Callback(ctx context.Context, org domain.OrgAuthConfig, in CallbackInput) (*CallbackResult, error) {
	state, err := s.verifyAndConsumeState(ctx, org, in)
	if err != nil {
		return nil, err
	}

	if err := s.checkRequestContext(org, state, in); err != nil {
		return nil, err
	}

	// The authorization code is single-use: a failed exchange is terminal
	// for this attempt, never retried.
	tokens, err := s.tokens.Exchange(ctx, in.Code, state.PKCEVerifier)
	if err != nil {
		if errors.Is(err, authdomain.ErrTokenExchangeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", authdomain.ErrTokenExchangeFailed, err)
	}

	claims, err := s.verifyClaims(ctx, org, state, tokens)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveUser(ctx, org, claims, tokens)
	if err != nil {
		return nil, err
	}

	session, cookie, err := s.sessions.Create(ctx, org, user.ID, in.ClientIP, in.UserAgent)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login completed",
		zap.Int64("org_id", org.OrgID),
		zap.Int64("user_id", user.ID),
		zap.String("session_id", session.SessionID),
		zap.String("connector_id", org.ConnectorID),
	)

	return &CallbackResult{
		User:      user,
		Session:   session,
		ReturnURL: state.ReturnURL,
		Cookie:    cookie,
	}, nil
}

func (s *Service) verifyAndConsumeState(ctx context.Context, org domain.OrgAuthConfig, in CallbackInput) (*authdomain.AuthState, error) {
	stateID, err := signedstate.Verify(in.State, org.SessionSecret, s.stateMaxAge)
	if err != nil {
		// Malformed, tampered, and stale tokens are indistinguishable to
		// the caller; only the log separates them.
		s.logSecurityEvent(org.OrgID, "state_verification_failed", err)
		return nil, authdomain.ErrInvalidState
	}

	state, err := s.stateCache.Take(ctx, stateID)
	if err != nil {
		return nil, fmt.Errorf("%w: take auth state: %v", authdomain.ErrPersistence, err)
	}
	if state == nil {
		s.logSecurityEvent(org.OrgID, "state_expired_or_replayed", nil)
		return nil, authdomain.ErrStateExpiredOrReplayed
	}

	if state.OrgID != org.OrgID {
		s.logSecurityEvent(org.OrgID, "state_org_mismatch", nil)
		return nil, authdomain.ErrInvalidState
	}

	return state, nil
}

func (s *Service) checkRequestContext(org domain.OrgAuthConfig, state *authdomain.AuthState, in CallbackInput) error {
	ipMatch := state.ClientIP == in.ClientIP
	uaMatch := subtle.ConstantTimeCompare([]byte(state.UserAgentHash), []byte(hashUserAgent(in.UserAgent))) == 1
	if ipMatch && uaMatch {
		return nil
	}

	s.logger.Warn("callback request context mismatch",
		zap.Int64("org_id", org.OrgID),
		zap.Bool("ip_match", ipMatch),
		zap.Bool("user_agent_match", uaMatch),
		zap.Bool("allowed", s.contextMismatchAllow),
	)
	if s.contextMismatchAllow {
		return nil
	}
	return authdomain.ErrContextMismatch
}

func (s *Service) verifyClaims(ctx context.Context, org domain.OrgAuthConfig, state *authdomain.AuthState, tokens *authdomain.TokenResponse) (*authdomain.IDTokenClaims, error) {
	claims, err := s.tokens.ParseIDToken(ctx, tokens.IDToken)
	if err != nil {
		s.logSecurityEvent(org.OrgID, "id_token_verification_failed", err)
		return nil, authdomain.ErrIDTokenInvalid
	}
	if err := dex.VerifyNonce(claims, state.Nonce); err != nil {
		s.logSecurityEvent(org.OrgID, "nonce_mismatch", nil)
		return nil, authdomain.ErrNonceMismatch
	}
	return claims, nil
}

func (s *Service) resolveUser(ctx context.Context, org domain.OrgAuthConfig, claims *authdomain.IDTokenClaims, tokens *authdomain.TokenResponse) (domain.User, error) {
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		email = claims.Subject + "@unknown"
	}

	user := domain.User{
		ID:             s.node.Generate().Int64(),
		OrgID:          org.OrgID,
		Email:          strings.ToLower(email),
		Name:           claims.Name,
		DisplayName:    claims.PreferredUsername,
		Picture:        claims.Picture,
		AuthProvider:   org.ConnectorID,
		ProviderUserID: claims.Subject,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		IDToken:        tokens.IDToken,
		IsActive:       true,
	}
	if tokens.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
		user.TokenExpiresAt = &expiresAt
	}

	resolved, err := s.users.UpsertFederated(ctx, user)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: upsert user: %v", authdomain.ErrPersistence, err)
	}
	return resolved, nil
}

func (s *Service) logSecurityEvent(orgID int64, event string, err error) {
	fields := []zap.Field{
		zap.Int64("org_id", orgID),
		zap.String("event", event),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Warn("auth security event", fields...)
}
