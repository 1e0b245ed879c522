package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// jwksRefreshInterval bounds how often the key set is refetched when a kid
// is unknown, so a flood of bad tokens cannot hammer the provider.
const jwksRefreshInterval = time.Minute

// JWKSCache fetches and caches the identity provider's JSON Web Key Set.
type JWKSCache struct {
	url        string
	httpClient *http.Client

	mu        sync.RWMutex
	keys      jose.JSONWebKeySet
	fetchedAt time.Time
}

// NewJWKSCache creates a cache for the key set served at url.
func NewJWKSCache(url string, httpClient *http.Client) *JWKSCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSCache{url: url, httpClient: httpClient}
}

// Key returns the verification key for kid, refreshing the cached set when
// the kid is unknown. Provider key rotation is picked up on the refresh.
func (c *JWKSCache) Key(ctx context.Context, kid string) (jose.JSONWebKey, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return jose.JSONWebKey{}, err
	}
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	return jose.JSONWebKey{}, fmt.Errorf("jwks: no key for kid %q", kid)
}

func (c *JWKSCache) lookup(kid string) (jose.JSONWebKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range c.keys.Keys {
		if key.KeyID == kid || kid == "" {
			return key, true
		}
	}
	return jose.JSONWebKey{}, false
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.fetchedAt) < jwksRefreshInterval && len(c.keys.Keys) > 0 {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read jwks: %w", err)
	}

	var keys jose.JSONWebKeySet
	if err := json.Unmarshal(body, &keys); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	c.keys = keys
	c.fetchedAt = time.Now()
	return nil
}
