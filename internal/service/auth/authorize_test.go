package auth_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/dexgate/internal/config"
	"github.com/smallbiznis/dexgate/internal/domain"
	auth "github.com/smallbiznis/dexgate/internal/service/auth"
	"github.com/smallbiznis/dexgate/internal/signedstate"
)

func testConfig() config.Config {
	return config.Config{
		Dex: config.DexAppConfig{
			ClientID:     "dexgate",
			ClientSecret: "shh",
			IssuerURL:    "https://dex.example.com",
			AuthorizeURL: "https://dex.example.com/auth",
			TokenURL:     "https://dex.example.com/token",
			RedirectURL:  "https://auth.example.com/auth/callback",
			Scopes:       []string{"openid", "profile", "email"},
		},
		StateTTL:    5 * time.Minute,
		StateMaxAge: 10 * time.Minute,
	}
}

func testOrg() domain.OrgAuthConfig {
	return domain.OrgAuthConfig{
		OrgID:         42,
		Subdomain:     "acme",
		ConnectorID:   "okta-prod",
		SessionSecret: "org-signing-secret",
		PKCERequired:  true,
		Session:       domain.DefaultSessionConfig(),
	}
}

type serviceFixture struct {
	service    *auth.Service
	stateCache *fakeStateCache
	tokens     *fakeTokenClient
	users      *fakeUserRepo
	sessions   *fakeSessionRepo
}

func newServiceFixture(t *testing.T, cfg config.Config) *serviceFixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	stateCache := newFakeStateCache()
	tokens := &fakeTokenClient{}
	users := newFakeUserRepo()
	sessionRepo := newFakeSessionRepo()
	sessions := auth.NewSessionManager(sessionRepo, zap.NewNop())

	return &serviceFixture{
		service:    auth.NewService(cfg, stateCache, tokens, users, sessions, node, zap.NewNop()),
		stateCache: stateCache,
		tokens:     tokens,
		users:      users,
		sessions:   sessionRepo,
	}
}

func TestStartLoginBuildsAuthorizeURL(t *testing.T) {
	f := newServiceFixture(t, testConfig())
	org := testOrg()

	out, err := f.service.StartLogin(context.Background(), org, auth.StartLoginInput{
		ReturnURL: "/settings",
		ClientIP:  "203.0.113.9",
		UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(out.AuthorizeURL)
	require.NoError(t, err)
	require.Equal(t, "dex.example.com", parsed.Host)
	require.Equal(t, "/auth", parsed.Path)

	params := parsed.Query()
	require.Equal(t, "dexgate", params.Get("client_id"))
	require.Equal(t, "https://auth.example.com/auth/callback", params.Get("redirect_uri"))
	require.Equal(t, "code", params.Get("response_type"))
	require.Equal(t, "openid profile email", params.Get("scope"))
	require.Equal(t, "okta-prod", params.Get("connector_id"))
	require.NotEmpty(t, params.Get("nonce"))
	require.Equal(t, "S256", params.Get("code_challenge_method"))
	require.NotEmpty(t, params.Get("code_challenge"))

	// The state parameter must verify against the org secret and point at a
	// cached entry that records the full request context.
	stateID, err := signedstate.Verify(params.Get("state"), org.SessionSecret, 10*time.Minute)
	require.NoError(t, err)
	state, ok := f.stateCache.entries[stateID]
	require.True(t, ok)
	require.Equal(t, org.OrgID, state.OrgID)
	require.Equal(t, "/settings", state.ReturnURL)
	require.Equal(t, "203.0.113.9", state.ClientIP)
	require.NotEmpty(t, state.Nonce)
	require.NotEmpty(t, state.PKCEVerifier)
	require.NotEmpty(t, state.CSRFToken)
	require.Equal(t, params.Get("nonce"), state.Nonce)

	sum := sha256.Sum256([]byte(state.PKCEVerifier))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), params.Get("code_challenge"))
}

func TestStartLoginWithoutPKCE(t *testing.T) {
	f := newServiceFixture(t, testConfig())
	org := testOrg()
	org.PKCERequired = false

	out, err := f.service.StartLogin(context.Background(), org, auth.StartLoginInput{})
	require.NoError(t, err)

	parsed, err := url.Parse(out.AuthorizeURL)
	require.NoError(t, err)
	params := parsed.Query()
	require.Empty(t, params.Get("code_challenge"))
	require.Empty(t, params.Get("code_challenge_method"))
}

func TestStartLoginDefaultReturnURL(t *testing.T) {
	f := newServiceFixture(t, testConfig())

	_, err := f.service.StartLogin(context.Background(), testOrg(), auth.StartLoginInput{})
	require.NoError(t, err)

	require.Len(t, f.stateCache.entries, 1)
	for _, state := range f.stateCache.entries {
		require.Equal(t, "/dashboard", state.ReturnURL)
	}
}

func TestStartLoginOrgParams(t *testing.T) {
	f := newServiceFixture(t, testConfig())
	org := testOrg()
	org.ProviderOrgID = "org_okta_123"
	org.Prompt = "login"
	org.MaxAgeSeconds = 3600
	org.AdditionalParams = []domain.Param{
		{Key: "audience", Value: "api://default"},
		// Attempts to shadow explicit fields are ignored.
		{Key: "client_id", Value: "evil"},
	}

	out, err := f.service.StartLogin(context.Background(), org, auth.StartLoginInput{})
	require.NoError(t, err)

	parsed, err := url.Parse(out.AuthorizeURL)
	require.NoError(t, err)
	params := parsed.Query()
	require.Equal(t, "org_okta_123", params.Get("organization"))
	require.Equal(t, "login", params.Get("prompt"))
	require.Equal(t, "3600", params.Get("max_age"))
	require.Equal(t, "api://default", params.Get("audience"))
	require.Equal(t, "dexgate", params.Get("client_id"))
}

func TestStartLoginUsesOrgStateTTL(t *testing.T) {
	f := newServiceFixture(t, testConfig())
	org := testOrg()
	org.StateTTL = 7 * time.Minute

	_, err := f.service.StartLogin(context.Background(), org, auth.StartLoginInput{})
	require.NoError(t, err)

	for id := range f.stateCache.entries {
		require.Equal(t, 7*time.Minute, f.stateCache.ttls[id])
	}
}
