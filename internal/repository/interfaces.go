package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/dexgate/internal/domain"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
)

// OrgConfigRepository loads per-tenant identity-provider configuration.
type OrgConfigRepository interface {
	GetBySubdomain(ctx context.Context, subdomain string) (domain.OrgAuthConfig, error)
}

// UserRepository persists federated users.
type UserRepository interface {
	// UpsertFederated inserts the user or, when (org_id, provider_user_id,
	// auth_provider) already exists, refreshes tokens, profile fields, and
	// last_login_at. Concurrent callbacks for the same identity converge on
	// a single row via the uniqueness constraint.
	UpsertFederated(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, orgID, userID int64) (domain.User, error)
}

// SessionRepository persists user sessions.
type SessionRepository interface {
	Create(ctx context.Context, session domain.UserSession) error
	Get(ctx context.Context, sessionID string) (domain.UserSession, error)
	ExtendExpiry(ctx context.Context, sessionID string, expiresAt, lastActivityAt time.Time) error
	Touch(ctx context.Context, sessionID string, lastActivityAt time.Time) error
	Invalidate(ctx context.Context, sessionID string) error
	InvalidateAllForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// StateCache stores ephemeral auth state with a TTL. Entries are write-once,
// read-once, or time-expire; there is no peek or update.
type StateCache interface {
	Put(ctx context.Context, stateID string, state authdomain.AuthState, ttl time.Duration) error
	// Take atomically removes and returns the state. It returns (nil, nil)
	// when the entry is absent, expired, or already consumed; two racing
	// callers observe exactly one success.
	Take(ctx context.Context, stateID string) (*authdomain.AuthState, error)
}
