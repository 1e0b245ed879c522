package auth

import "time"

// AuthState is the ephemeral per-login context persisted in the state cache.
// It lives for the cache TTL and is consumed exactly once during the callback.
type AuthState struct {
	StateID       string    `json:"state_id"`
	OrgID         int64     `json:"org_id"`
	Nonce         string    `json:"nonce"`
	PKCEVerifier  string    `json:"pkce_verifier"`
	CSRFToken     string    `json:"csrf_token"`
	ReturnURL     string    `json:"return_url"`
	ClientIP      string    `json:"client_ip"`
	UserAgentHash string    `json:"user_agent_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// TokenResponse models the identity provider's token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope"`
}

// IDTokenClaims carries the claims extracted from a verified ID token.
type IDTokenClaims struct {
	Subject           string
	Issuer            string
	Audience          []string
	Expiry            time.Time
	IssuedAt          time.Time
	Nonce             string
	Email             string
	EmailVerified     bool
	Name              string
	Picture           string
	PreferredUsername string
}
