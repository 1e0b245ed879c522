package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smallbiznis/dexgate/internal/domain"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
)

type fakeStateCache struct {
	mu      sync.Mutex
	entries map[string]authdomain.AuthState
	ttls    map[string]time.Duration
}

func newFakeStateCache() *fakeStateCache {
	return &fakeStateCache{
		entries: make(map[string]authdomain.AuthState),
		ttls:    make(map[string]time.Duration),
	}
}

func (f *fakeStateCache) Put(ctx context.Context, stateID string, state authdomain.AuthState, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[stateID] = state
	f.ttls[stateID] = ttl
	return nil
}

func (f *fakeStateCache) Take(ctx context.Context, stateID string) (*authdomain.AuthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.entries[stateID]
	if !ok {
		return nil, nil
	}
	delete(f.entries, stateID)
	return &state, nil
}

type fakeTokenClient struct {
	tokens      *authdomain.TokenResponse
	exchangeErr error

	claims   *authdomain.IDTokenClaims
	parseErr error

	lastCode     string
	lastVerifier string
}

func (f *fakeTokenClient) Exchange(ctx context.Context, code, codeVerifier string) (*authdomain.TokenResponse, error) {
	f.lastCode = code
	f.lastVerifier = codeVerifier
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.tokens, nil
}

func (f *fakeTokenClient) ParseIDToken(ctx context.Context, idToken string) (*authdomain.IDTokenClaims, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.claims, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func upsertKey(user domain.User) string {
	return user.AuthProvider + "|" + user.ProviderUserID
}

func (f *fakeUserRepo) UpsertFederated(ctx context.Context, user domain.User) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := upsertKey(user)
	if existing, ok := f.users[key]; ok && existing.OrgID == user.OrgID {
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.LastLoginAt = now
	user.UpdatedAt = now
	f.users[key] = user
	return user, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, orgID, userID int64) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.OrgID == orgID && user.ID == userID {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.UserSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]domain.UserSession)}
}

func (f *fakeSessionRepo) Create(ctx context.Context, session domain.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.SessionID] = session
	return nil
}

func (f *fakeSessionRepo) Get(ctx context.Context, sessionID string) (domain.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return domain.UserSession{}, pgx.ErrNoRows
	}
	return session, nil
}

func (f *fakeSessionRepo) ExtendExpiry(ctx context.Context, sessionID string, expiresAt, lastActivityAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := f.sessions[sessionID]
	session.ExpiresAt = expiresAt
	session.LastActivityAt = lastActivityAt
	f.sessions[sessionID] = session
	return nil
}

func (f *fakeSessionRepo) Touch(ctx context.Context, sessionID string, lastActivityAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := f.sessions[sessionID]
	session.LastActivityAt = lastActivityAt
	f.sessions[sessionID] = session
	return nil
}

func (f *fakeSessionRepo) Invalidate(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := f.sessions[sessionID]
	session.IsActive = false
	f.sessions[sessionID] = session
	return nil
}

func (f *fakeSessionRepo) InvalidateAllForUser(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, session := range f.sessions {
		if session.UserID == userID {
			session.IsActive = false
			f.sessions[id] = session
		}
	}
	return nil
}

func (f *fakeSessionRepo) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for id, session := range f.sessions {
		if session.ExpiresAt.Before(olderThan) {
			delete(f.sessions, id)
			removed++
		}
	}
	return removed, nil
}
