package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/dexgate/internal/domain"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
)

// Compile-time interface assertions.
var (
	_ OrgConfigRepository = (*PostgresOrgConfigRepo)(nil)
	_ UserRepository      = (*PostgresUserRepo)(nil)
	_ SessionRepository   = (*PostgresSessionRepo)(nil)
)

// PostgresOrgConfigRepo loads org auth configuration rows.
type PostgresOrgConfigRepo struct {
	db *pgxpool.Pool
}

func NewPostgresOrgConfigRepo(pool *pgxpool.Pool) *PostgresOrgConfigRepo {
	return &PostgresOrgConfigRepo{db: pool}
}

const getOrgConfigSQL = `SELECT org_id, subdomain, connector_id, provider_org_id, session_secret,
       pkce_required, max_age_seconds, prompt, additional_params, state_ttl_seconds, session_config,
       created_at, updated_at
FROM org_auth_configs
WHERE subdomain = $1 AND active = TRUE`

func (r *PostgresOrgConfigRepo) GetBySubdomain(ctx context.Context, subdomain string) (domain.OrgAuthConfig, error) {
	var (
		cfg              domain.OrgAuthConfig
		providerOrgID    *string
		prompt           *string
		additionalParams []byte
		stateTTLSeconds  int64
		sessionConfig    []byte
	)
	err := r.db.QueryRow(ctx, getOrgConfigSQL, subdomain).Scan(
		&cfg.OrgID,
		&cfg.Subdomain,
		&cfg.ConnectorID,
		&providerOrgID,
		&cfg.SessionSecret,
		&cfg.PKCERequired,
		&cfg.MaxAgeSeconds,
		&prompt,
		&additionalParams,
		&stateTTLSeconds,
		&sessionConfig,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrgAuthConfig{}, authdomain.ErrConfigNotFound
		}
		return domain.OrgAuthConfig{}, fmt.Errorf("get org config: %w", err)
	}

	if providerOrgID != nil {
		cfg.ProviderOrgID = *providerOrgID
	}
	if prompt != nil {
		cfg.Prompt = *prompt
	}
	if stateTTLSeconds > 0 {
		cfg.StateTTL = time.Duration(stateTTLSeconds) * time.Second
	}
	if len(additionalParams) > 0 {
		if err := json.Unmarshal(additionalParams, &cfg.AdditionalParams); err != nil {
			return domain.OrgAuthConfig{}, fmt.Errorf("decode additional params: %w", err)
		}
	}
	cfg.Session = domain.DefaultSessionConfig()
	if len(sessionConfig) > 0 {
		if err := json.Unmarshal(sessionConfig, &cfg.Session); err != nil {
			return domain.OrgAuthConfig{}, fmt.Errorf("decode session config: %w", err)
		}
	}

	return cfg, nil
}

// PostgresUserRepo persists federated users.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

// The ON CONFLICT clause is the race-safety mechanism for concurrent
// callbacks resolving the same identity: the unique tuple turns the second
// insert into an update instead of a duplicate row.
const upsertUserSQL = `INSERT INTO users (
    id, org_id, email, name, display_name, picture,
    auth_provider, provider_user_id,
    access_token, refresh_token, id_token, token_expires_at,
    is_active, created_at, last_login_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, $13, $13, $13)
ON CONFLICT (org_id, provider_user_id, auth_provider) DO UPDATE SET
    email = EXCLUDED.email,
    name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
    display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
    picture = COALESCE(NULLIF(EXCLUDED.picture, ''), users.picture),
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    id_token = EXCLUDED.id_token,
    token_expires_at = EXCLUDED.token_expires_at,
    last_login_at = EXCLUDED.last_login_at,
    updated_at = EXCLUDED.updated_at
RETURNING id, org_id, email, name, display_name, picture,
    auth_provider, provider_user_id,
    access_token, refresh_token, id_token, token_expires_at,
    is_active, created_at, last_login_at, updated_at`

func (r *PostgresUserRepo) UpsertFederated(ctx context.Context, user domain.User) (domain.User, error) {
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, upsertUserSQL,
		user.ID,
		user.OrgID,
		user.Email,
		user.Name,
		user.DisplayName,
		user.Picture,
		user.AuthProvider,
		user.ProviderUserID,
		user.AccessToken,
		user.RefreshToken,
		user.IDToken,
		user.TokenExpiresAt,
		now,
	)
	stored, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return stored, nil
}

const getUserByIDSQL = `SELECT id, org_id, email, name, display_name, picture,
    auth_provider, provider_user_id,
    access_token, refresh_token, id_token, token_expires_at,
    is_active, created_at, last_login_at, updated_at
FROM users
WHERE org_id = $1 AND id = $2 AND is_active = TRUE`

func (r *PostgresUserRepo) GetByID(ctx context.Context, orgID, userID int64) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, getUserByIDSQL, orgID, userID))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.OrgID,
		&user.Email,
		&user.Name,
		&user.DisplayName,
		&user.Picture,
		&user.AuthProvider,
		&user.ProviderUserID,
		&user.AccessToken,
		&user.RefreshToken,
		&user.IDToken,
		&user.TokenExpiresAt,
		&user.IsActive,
		&user.CreatedAt,
		&user.LastLoginAt,
		&user.UpdatedAt,
	)
	return user, err
}

// PostgresSessionRepo persists user sessions.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: pool}
}

const insertSessionSQL = `INSERT INTO user_sessions (
    session_id, user_id, org_id, ip_address, user_agent,
    is_active, created_at, expires_at, last_activity_at
) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8)`

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.UserSession) error {
	_, err := r.db.Exec(ctx, insertSessionSQL,
		session.SessionID,
		session.UserID,
		session.OrgID,
		session.IPAddress,
		session.UserAgent,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

const getSessionSQL = `SELECT session_id, user_id, org_id, ip_address, user_agent,
    is_active, created_at, expires_at, last_activity_at
FROM user_sessions
WHERE session_id = $1`

func (r *PostgresSessionRepo) Get(ctx context.Context, sessionID string) (domain.UserSession, error) {
	var session domain.UserSession
	err := r.db.QueryRow(ctx, getSessionSQL, sessionID).Scan(
		&session.SessionID,
		&session.UserID,
		&session.OrgID,
		&session.IPAddress,
		&session.UserAgent,
		&session.IsActive,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserSession{}, err
		}
		return domain.UserSession{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *PostgresSessionRepo) ExtendExpiry(ctx context.Context, sessionID string, expiresAt, lastActivityAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET expires_at = $2, last_activity_at = $3 WHERE session_id = $1`,
		sessionID, expiresAt, lastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) Touch(ctx context.Context, sessionID string, lastActivityAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET last_activity_at = $2 WHERE session_id = $1`,
		sessionID, lastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) Invalidate(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET is_active = FALSE WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) InvalidateAllForUser(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("invalidate user sessions: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM user_sessions WHERE expires_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
