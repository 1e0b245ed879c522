package org_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/dexgate/internal/domain"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
	"github.com/smallbiznis/dexgate/internal/org"
)

func TestResolverResolve(t *testing.T) {
	repo := &mockConfigRepo{known: "acme"}
	resolver := org.NewResolver(repo)

	cfg, err := resolver.Resolve(context.Background(), "acme.example.com")
	require.NoError(t, err)
	require.Equal(t, int64(1), cfg.OrgID)
	require.Equal(t, "acme", cfg.Subdomain)
	require.Equal(t, "okta-prod", cfg.ConnectorID)
}

func TestResolverResolveStripsPort(t *testing.T) {
	repo := &mockConfigRepo{known: "acme"}
	resolver := org.NewResolver(repo)

	cfg, err := resolver.Resolve(context.Background(), "ACME.example.com:8443")
	require.NoError(t, err)
	require.Equal(t, "acme", cfg.Subdomain)
}

func TestResolverResolveUnknownSubdomain(t *testing.T) {
	repo := &mockConfigRepo{known: "acme"}
	resolver := org.NewResolver(repo)

	_, err := resolver.Resolve(context.Background(), "ghost.example.com")
	require.ErrorIs(t, err, authdomain.ErrConfigNotFound)
}

func TestResolverResolveApexHost(t *testing.T) {
	repo := &mockConfigRepo{known: "acme"}
	resolver := org.NewResolver(repo)

	_, err := resolver.Resolve(context.Background(), "localhost")
	require.ErrorIs(t, err, authdomain.ErrConfigNotFound)
}

func TestResolverResolveBySubdomain(t *testing.T) {
	repo := &mockConfigRepo{known: "acme"}
	resolver := org.NewResolver(repo)

	cfg, err := resolver.ResolveBySubdomain(context.Background(), "  Acme  ")
	require.NoError(t, err)
	require.Equal(t, int64(1), cfg.OrgID)

	_, err = resolver.ResolveBySubdomain(context.Background(), "")
	require.ErrorIs(t, err, authdomain.ErrConfigNotFound)
}

func TestSubdomainFromHost(t *testing.T) {
	sub, err := org.SubdomainFromHost("tenant.auth.example.com")
	require.NoError(t, err)
	require.Equal(t, "tenant", sub)

	_, err = org.SubdomainFromHost("")
	require.Error(t, err)

	_, err = org.SubdomainFromHost(".example.com")
	require.Error(t, err)
}

type mockConfigRepo struct {
	known string
}

func (m *mockConfigRepo) GetBySubdomain(ctx context.Context, subdomain string) (domain.OrgAuthConfig, error) {
	if subdomain != m.known {
		return domain.OrgAuthConfig{}, authdomain.ErrConfigNotFound
	}
	return domain.OrgAuthConfig{
		OrgID:         1,
		Subdomain:     subdomain,
		ConnectorID:   "okta-prod",
		SessionSecret: "topsecret",
		Session:       domain.DefaultSessionConfig(),
	}, nil
}
