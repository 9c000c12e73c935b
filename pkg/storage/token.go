package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// tokenExpirySkew refreshes tokens slightly before they expire
const tokenExpirySkew = time.Minute

// defaultTokenLifetime applies when the issuer omits expires_in
const defaultTokenLifetime = time.Hour

// tokenCache holds one bearer token with its issuance and expiry times
type tokenCache struct {
	fetch func(ctx context.Context) (*oauth2.Token, error)
	now   func() time.Time

	mu        sync.RWMutex
	token     string
	issuedAt  time.Time
	expiresAt time.Time
}

func newTokenCache(fetch func(ctx context.Context) (*oauth2.Token, error)) *tokenCache {
	return &tokenCache{fetch: fetch, now: time.Now}
}

func (c *tokenCache) valid() bool {
	return c.token != "" && c.now().Add(tokenExpirySkew).Before(c.expiresAt)
}

// Token returns the cached token, fetching a new one when it is missing or
// about to expire
func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.valid() {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.valid() {
		return c.token, nil
	}

	t, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	if t.AccessToken == "" {
		return "", errors.New("token endpoint returned an empty access token")
	}

	c.token = t.AccessToken
	c.issuedAt = c.now()
	c.expiresAt = t.Expiry
	if c.expiresAt.IsZero() {
		c.expiresAt = c.issuedAt.Add(defaultTokenLifetime)
	}
	return c.token, nil
}

// Invalidate drops token if it is still the cached one
func (c *tokenCache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}

// IssuedAt reports when the cached token was obtained
func (c *tokenCache) IssuedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.issuedAt
}
