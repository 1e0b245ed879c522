package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/dexgate/internal/domain"
	"github.com/smallbiznis/dexgate/internal/org"
)

const ginOrgContextKey = "orgContext"

type orgContextKey struct{}

// Org resolves the tenant from the Host header (or X-Org-ID override) and
// stores the org config in Gin and request contexts. Unknown and inactive
// orgs get the same 404 so tenant existence is not probeable.
func Org(resolver *org.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		subdomain := strings.TrimSpace(c.Request.Header.Get("X-Org-ID"))

		var (
			cfg domain.OrgAuthConfig
			err error
		)
		if subdomain != "" {
			cfg, err = resolver.ResolveBySubdomain(c.Request.Context(), subdomain)
		} else {
			cfg, err = resolver.Resolve(c.Request.Context(), c.Request.Host)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "invalid_tenant", "error_description": "Unknown org."})
			return
		}

		ctx := context.WithValue(c.Request.Context(), orgContextKey{}, cfg)
		c.Request = c.Request.WithContext(ctx)

		c.Set(ginOrgContextKey, cfg)
		c.Next()
	}
}

// GetOrgConfig extracts the resolved org config from gin.
func GetOrgConfig(c *gin.Context) (domain.OrgAuthConfig, bool) {
	value, ok := c.Get(ginOrgContextKey)
	if !ok {
		return domain.OrgAuthConfig{}, false
	}
	cfg, ok := value.(domain.OrgAuthConfig)
	return cfg, ok
}

// OrgConfigFromContext extracts the org config from a standard context.
func OrgConfigFromContext(ctx context.Context) (domain.OrgAuthConfig, bool) {
	value := ctx.Value(orgContextKey{})
	if value == nil {
		return domain.OrgAuthConfig{}, false
	}
	cfg, ok := value.(domain.OrgAuthConfig)
	return cfg, ok
}
