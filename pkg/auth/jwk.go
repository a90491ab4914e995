package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/sync/singleflight"

	"github.com/lightspan-ai/gateway/pkg/config"
)

// jwkSetCache is a TTL cache of JWK sets keyed by URL. Concurrent refreshes
// of the same URL collapse into a single fetch.
type jwkSetCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]jwkSetEntry
	group   singleflight.Group
}

type jwkSetEntry struct {
	set       jwk.Set
	fetchedAt time.Time
}

func newJWKSetCache(ttl time.Duration) *jwkSetCache {
	return &jwkSetCache{
		ttl:     ttl,
		entries: make(map[string]jwkSetEntry),
	}
}

// Get returns the cached set for url, refetching when the entry is older
// than the TTL. Readers only contend on a miss.
func (c *jwkSetCache) Get(ctx context.Context, url string) (jwk.Set, error) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.set, nil
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		// Another request may have refreshed while we waited on the lock.
		c.mu.RLock()
		entry, ok := c.entries[url]
		c.mu.RUnlock()
		if ok && time.Since(entry.fetchedAt) < c.ttl {
			return entry.set, nil
		}

		set, err := jwk.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch JWK set from %s: %w", url, err)
		}

		c.mu.Lock()
		c.entries[url] = jwkSetEntry{set: set, fetchedAt: time.Now()}
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(jwk.Set), nil
}

// JWKModule validates JWT bearer tokens against a remote JWK set.
type JWKModule struct {
	cfg   config.JWKConfig
	cache *jwkSetCache
}

// NewJWKModule creates the jwk-token auth module.
func NewJWKModule(cfg config.JWKConfig) *JWKModule {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWKModule{
		cfg:   cfg,
		cache: newJWKSetCache(ttl),
	}
}

// Authenticate implements Module.
//
// A request with no Authorization header yields the sentinel unauthenticated
// identity rather than an error, so endpoints that do not require auth keep
// working. A present but invalid token is an error.
func (m *JWKModule) Authenticate(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return &Identity{
			UserID:   UnauthenticatedUserID,
			Username: UnauthenticatedUsername,
		}, nil
	}

	token, err := ExtractBearer(r)
	if err != nil {
		return nil, err
	}

	set, err := m.cache.Get(r.Context(), m.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	key, err := resolveKey(set, token)
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(key.Algorithm(), key),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, err := tokenClaims(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenDecode, err)
	}

	for _, required := range m.cfg.RequiredClaims {
		if _, ok := claims[required]; !ok {
			return nil, fmt.Errorf("%w: missing required claim %q", ErrUnauthenticated, required)
		}
	}

	userID, _ := claims[m.cfg.UserIDClaim].(string)
	username, _ := claims[m.cfg.UsernameClaim].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: claim %q absent or not a string", ErrTokenDecode, m.cfg.UserIDClaim)
	}
	if username == "" {
		slog.Warn("token carries no username claim", "claim", m.cfg.UsernameClaim, "user", userID)
	}

	return &Identity{
		UserID:   userID,
		Username: username,
		Token:    token,
		Claims:   claims,
	}, nil
}

// resolveKey picks the verification key for a compact JWS: by kid when the
// token names one, otherwise the first key matching the token's alg.
func resolveKey(set jwk.Set, token string) (jwk.Key, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenDecode, err)
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return nil, fmt.Errorf("%w: token carries no signature", ErrTokenDecode)
	}
	headers := sigs[0].ProtectedHeaders()

	if kid := headers.KeyID(); kid != "" {
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("%w: no key with kid %q", ErrUnauthenticated, kid)
		}
		return key, nil
	}

	alg := headers.Algorithm()
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if key.Algorithm() == alg {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: no key for alg %q", ErrUnauthenticated, alg)
}

func tokenClaims(t jwt.Token) (map[string]any, error) {
	claims, err := t.AsMap(context.Background())
	if err != nil {
		return nil, err
	}
	return claims, nil
}
