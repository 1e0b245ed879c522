// Package org resolves per-request organization configuration from the
// request host.
package org

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/dexgate/internal/domain"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
	"github.com/smallbiznis/dexgate/internal/repository"
)

// Resolver loads org auth configuration from the config store.
type Resolver struct {
	repo repository.OrgConfigRepository
}

// NewResolver creates an org resolver.
func NewResolver(repo repository.OrgConfigRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve loads the org configuration for the request host. The subdomain is
// the first DNS label of the host; apex hosts with no subdomain do not map to
// an org.
func (r *Resolver) Resolve(ctx context.Context, host string) (domain.OrgAuthConfig, error) {
	subdomain, err := SubdomainFromHost(host)
	if err != nil {
		zap.L().Warn("org resolver rejected host", zap.String("host", host), zap.Error(err))
		return domain.OrgAuthConfig{}, authdomain.ErrConfigNotFound
	}
	return r.ResolveBySubdomain(ctx, subdomain)
}

// ResolveBySubdomain loads the org configuration for an explicit subdomain,
// as supplied by the X-Org-ID header.
func (r *Resolver) ResolveBySubdomain(ctx context.Context, subdomain string) (domain.OrgAuthConfig, error) {
	cleaned := strings.ToLower(strings.TrimSpace(subdomain))
	if cleaned == "" {
		zap.L().Warn("org resolver received empty subdomain")
		return domain.OrgAuthConfig{}, authdomain.ErrConfigNotFound
	}

	cfg, err := r.repo.GetBySubdomain(ctx, cleaned)
	if err != nil {
		if !errors.Is(err, authdomain.ErrConfigNotFound) {
			zap.L().Error("failed to resolve org config", zap.String("subdomain", cleaned), zap.Error(err))
		}
		return domain.OrgAuthConfig{}, err
	}

	zap.L().Debug("org config resolved", zap.String("subdomain", cleaned), zap.Int64("org_id", cfg.OrgID))
	return cfg, nil
}

// SubdomainFromHost extracts the tenant subdomain from a Host header value.
// A port suffix is ignored. Hosts with fewer than two labels carry no
// subdomain and are rejected.
func SubdomainFromHost(host string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(host))
	if strings.Contains(cleaned, ":") {
		if h, _, err := net.SplitHostPort(cleaned); err == nil {
			cleaned = h
		}
	}
	if cleaned == "" {
		return "", fmt.Errorf("empty host")
	}

	labels := strings.Split(cleaned, ".")
	if len(labels) < 2 || labels[0] == "" {
		return "", fmt.Errorf("host %q has no subdomain", cleaned)
	}
	return labels[0], nil
}
