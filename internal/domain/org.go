package domain

import "time"

// Param is a single additional authorization-request parameter. Params keep
// their configured order so the query string is stable across logins.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OrgAuthConfig holds the per-organization identity-provider configuration.
// It is loaded per request from the org store keyed by subdomain.
type OrgAuthConfig struct {
	OrgID         int64
	Subdomain     string
	ConnectorID   string
	ProviderOrgID string

	// SessionSecret signs the state token for this org. Rotatable, treated
	// as a capability: it must never appear in logs or error messages.
	SessionSecret string

	PKCERequired     bool
	MaxAgeSeconds    int64
	Prompt           string
	AdditionalParams []Param
	StateTTL         time.Duration

	Session SessionConfig

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionConfig controls session cookies and sliding expiration per org.
type SessionConfig struct {
	CookieName       string `json:"cookie_name"`
	CookieDomain     string `json:"cookie_domain"`
	Secure           bool   `json:"secure"`
	HTTPOnly         bool   `json:"http_only"`
	SameSite         string `json:"same_site"`
	MaxAgeSeconds    int64  `json:"max_age_seconds"`
	SigningSecret    string `json:"cookie_signing_secret"`
	ExtensionEnabled bool   `json:"extension_enabled"`

	// ExtensionThreshold is the fraction of the session lifetime that must
	// have elapsed before a sliding renewal is written.
	ExtensionThreshold float64 `json:"extension_threshold"`
}

// DefaultSessionConfig returns the fallback cookie policy for orgs that have
// not customized their session settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		CookieName:         "session_id",
		Secure:             true,
		HTTPOnly:           true,
		SameSite:           "lax",
		MaxAgeSeconds:      86400,
		ExtensionEnabled:   true,
		ExtensionThreshold: 0.5,
	}
}
