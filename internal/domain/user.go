package domain

import "time"

// User represents an end user federated from an external identity provider.
// Users are unique per (org_id, provider_user_id, auth_provider).
type User struct {
	ID             int64
	OrgID          int64
	Email          string
	Name           string
	DisplayName    string
	Picture        string
	AuthProvider   string
	ProviderUserID string
	AccessToken    string
	RefreshToken   string
	IDToken        string
	TokenExpiresAt *time.Time
	IsActive       bool
	CreatedAt      time.Time
	LastLoginAt    time.Time
	UpdatedAt      time.Time
}

// UserSession is a persistent server-side session owned by a User.
type UserSession struct {
	SessionID      string
	UserID         int64
	OrgID          int64
	IPAddress      string
	UserAgent      string
	IsActive       bool
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
}
