// Package auth implements the multi-tenant OAuth2/OIDC login flow: building
// authorization requests, driving the callback exchange, and managing user
// sessions.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/dexgate/internal/adapter/dex"
	"github.com/smallbiznis/dexgate/internal/config"
	"github.com/smallbiznis/dexgate/internal/domain"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
	"github.com/smallbiznis/dexgate/internal/repository"
	"github.com/smallbiznis/dexgate/internal/signedstate"
)

// Service orchestrates the login and callback flows.
type Service struct {
	dexCfg     config.DexAppConfig
	stateCache repository.StateCache
	tokens     dex.TokenClient
	users      repository.UserRepository
	sessions   *SessionManager
	node       *snowflake.Node
	logger     *zap.Logger

	stateTTL             time.Duration
	stateMaxAge          time.Duration
	contextMismatchAllow bool
}

// NewService wires the auth service.
func NewService(
	cfg config.Config,
	stateCache repository.StateCache,
	tokens dex.TokenClient,
	users repository.UserRepository,
	sessions *SessionManager,
	node *snowflake.Node,
	logger *zap.Logger,
) *Service {
	return &Service{
		dexCfg:               cfg.Dex,
		stateCache:           stateCache,
		tokens:               tokens,
		users:                users,
		sessions:             sessions,
		node:                 node,
		logger:               logger,
		stateTTL:             cfg.StateTTL,
		stateMaxAge:          cfg.StateMaxAge,
		contextMismatchAllow: cfg.ContextMismatchAllow,
	}
}

// StartLoginInput carries the request context for a new login attempt.
type StartLoginInput struct {
	ReturnURL string
	ClientIP  string
	UserAgent string
}

// StartLoginOutput returns the provider authorization URL for the attempt.
type StartLoginOutput struct {
	AuthorizeURL string
}

// StartLogin generates the PKCE/nonce/CSRF material for a login attempt,
// persists the ephemeral auth state, and assembles the signed authorization
// URL. Apart from the cache write the operation has no side effects.
func (s *Service) StartLogin(ctx context.Context, org domain.OrgAuthConfig, in StartLoginInput) (*StartLoginOutput, error) {
	stateID, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state id: %w", err)
	}
	verifier, err := secureRandomString(64)
	if err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}
	nonce, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	csrfToken, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	returnURL := strings.TrimSpace(in.ReturnURL)
	if returnURL == "" {
		returnURL = "/dashboard"
	}

	state := authdomain.AuthState{
		StateID:       stateID,
		OrgID:         org.OrgID,
		Nonce:         nonce,
		PKCEVerifier:  verifier,
		CSRFToken:     csrfToken,
		ReturnURL:     returnURL,
		ClientIP:      in.ClientIP,
		UserAgentHash: hashUserAgent(in.UserAgent),
		CreatedAt:     time.Now().UTC(),
	}

	ttl := org.StateTTL
	if ttl <= 0 {
		ttl = s.stateTTL
	}
	if err := s.stateCache.Put(ctx, stateID, state, ttl); err != nil {
		return nil, fmt.Errorf("%w: persist auth state: %v", authdomain.ErrPersistence, err)
	}

	signed := signedstate.Sign(stateID, org.SessionSecret)

	authorizeURL, err := s.buildAuthorizeURL(org, signed, nonce, verifier)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("login started",
		zap.Int64("org_id", org.OrgID),
		zap.String("connector_id", org.ConnectorID),
		zap.String("return_url", returnURL),
	)

	return &StartLoginOutput{AuthorizeURL: authorizeURL}, nil
}

func (s *Service) buildAuthorizeURL(org domain.OrgAuthConfig, signedState, nonce, verifier string) (string, error) {
	authURL, err := url.Parse(s.dexCfg.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}

	params := authURL.Query()
	params.Set("client_id", s.dexCfg.ClientID)
	params.Set("redirect_uri", s.dexCfg.RedirectURL)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(s.dexCfg.Scopes, " "))
	params.Set("state", signedState)
	params.Set("nonce", nonce)
	if org.PKCERequired {
		params.Set("code_challenge", pkceChallenge(verifier))
		params.Set("code_challenge_method", "S256")
	}
	params.Set("connector_id", org.ConnectorID)
	if org.ProviderOrgID != "" {
		params.Set("organization", org.ProviderOrgID)
	}
	if org.Prompt != "" {
		params.Set("prompt", org.Prompt)
	}
	if org.MaxAgeSeconds > 0 {
		params.Set("max_age", strconv.FormatInt(org.MaxAgeSeconds, 10))
	}
	// Custom params merge last; explicit fields always win.
	for _, p := range org.AdditionalParams {
		key := strings.TrimSpace(p.Key)
		if key == "" || params.Has(key) {
			continue
		}
		params.Set(key, p.Value)
	}
	authURL.RawQuery = params.Encode()

	return authURL.String(), nil
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func hashUserAgent(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])
}
