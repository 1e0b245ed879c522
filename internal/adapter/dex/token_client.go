// Package dex contains the outbound HTTP client for the identity provider:
// the authorization-code token exchange and ID-token parsing with JWKS-based
// signature verification.
package dex

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/dexgate/internal/config"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
)

// TokenClient exchanges authorization codes and validates ID tokens.
type TokenClient interface {
	Exchange(ctx context.Context, code, codeVerifier string) (*authdomain.TokenResponse, error)
	ParseIDToken(ctx context.Context, idToken string) (*authdomain.IDTokenClaims, error)
}

// ExchangeError carries the provider status for a failed code exchange. The
// response body is retained for diagnostics but is not part of the error
// string because it may echo credentials.
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%v: provider status %d", authdomain.ErrTokenExchangeFailed, e.StatusCode)
}

func (e *ExchangeError) Unwrap() error { return authdomain.ErrTokenExchangeFailed }

// Client is the default HTTP TokenClient.
type Client struct {
	cfg        config.DexAppConfig
	httpClient *http.Client
	jwks       *JWKSCache
}

var _ TokenClient = (*Client)(nil)

// NewClient constructs the token client. When ID-token verification is
// enabled (the default) signatures are checked against the provider JWKS.
func NewClient(cfg config.DexAppConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{cfg: cfg, httpClient: httpClient}
	if !cfg.SkipIDTokenVerification {
		c.jwks = NewJWKSCache(cfg.JWKSURL, httpClient)
	}
	return c
}

// Exchange posts the authorization code and PKCE verifier to the token
// endpoint. Authorization codes are single-use, so failures are terminal for
// the request and never retried here.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*authdomain.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURL)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authdomain.ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token authdomain.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(token.IDToken) == "" {
		return nil, fmt.Errorf("%w: provider returned no id_token", authdomain.ErrTokenExchangeFailed)
	}
	return &token, nil
}

var allowedSignatureAlgorithms = []jose.SignatureAlgorithm{jose.RS256, jose.ES256}

type idTokenExtra struct {
	Nonce             string `json:"nonce"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
	PreferredUsername string `json:"preferred_username"`
}

// ParseIDToken splits and decodes the compact JWT and validates the standard
// claims. Signature verification against the provider JWKS is mandatory
// unless it was explicitly disabled in configuration.
func (c *Client) ParseIDToken(ctx context.Context, idToken string) (*authdomain.IDTokenClaims, error) {
	parsed, err := josejwt.ParseSigned(idToken, allowedSignatureAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}

	var std josejwt.Claims
	var extra idTokenExtra
	if c.jwks != nil {
		if len(parsed.Headers) == 0 {
			return nil, fmt.Errorf("parse id token: missing header")
		}
		key, err := c.jwks.Key(ctx, parsed.Headers[0].KeyID)
		if err != nil {
			return nil, fmt.Errorf("resolve signing key: %w", err)
		}
		if err := parsed.Claims(key, &std, &extra); err != nil {
			return nil, fmt.Errorf("verify id token: %w", err)
		}
	} else if err := parsed.UnsafeClaimsWithoutVerification(&std, &extra); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}

	expected := josejwt.Expected{
		Issuer:      c.cfg.IssuerURL,
		AnyAudience: josejwt.Audience{c.cfg.ClientID},
		Time:        time.Now(),
	}
	if err := std.Validate(expected); err != nil {
		return nil, fmt.Errorf("validate id token claims: %w", err)
	}

	claims := &authdomain.IDTokenClaims{
		Subject:           std.Subject,
		Issuer:            std.Issuer,
		Audience:          std.Audience,
		Nonce:             extra.Nonce,
		Email:             extra.Email,
		EmailVerified:     extra.EmailVerified,
		Name:              extra.Name,
		Picture:           extra.Picture,
		PreferredUsername: extra.PreferredUsername,
	}
	if std.Expiry != nil {
		claims.Expiry = std.Expiry.Time()
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	return claims, nil
}

// VerifyNonce checks the ID token nonce against the nonce issued for this
// login attempt.
func VerifyNonce(claims *authdomain.IDTokenClaims, expected string) error {
	if expected == "" || subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(expected)) != 1 {
		return authdomain.ErrNonceMismatch
	}
	return nil
}
