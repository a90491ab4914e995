package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightspan-ai/gateway/pkg/config"
)

type jwksFixture struct {
	privateKey jwk.Key
	server     *httptest.Server
	fetches    atomic.Int64
}

func newJWKSFixture(t *testing.T, kid string) *jwksFixture {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	private, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, private.Set(jwk.AlgorithmKey, jwa.RS256))
	if kid != "" {
		require.NoError(t, private.Set(jwk.KeyIDKey, kid))
	}

	public, err := private.PublicKey()
	require.NoError(t, err)

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))

	f := &jwksFixture{privateKey: private}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, claims map[string]any) string {
	t.Helper()

	builder := jwt.NewBuilder().
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	for k, v := range claims {
		builder = builder.Claim(k, v)
	}
	token, err := builder.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, f.privateKey))
	require.NoError(t, err)
	return string(signed)
}

func newJWKModule(url string) *JWKModule {
	return NewJWKModule(config.JWKConfig{
		URL:           url,
		CacheTTL:      time.Hour,
		UserIDClaim:   "user_id",
		UsernameClaim: "username",
	})
}

func TestJWKModuleValidToken(t *testing.T) {
	f := newJWKSFixture(t, "key-1")
	m := newJWKModule(f.server.URL)

	token := f.sign(t, map[string]any{"user_id": "u-42", "username": "alice"})
	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	id, err := m.Authenticate(r)
	require.NoError(t, err)

	assert.Equal(t, "u-42", id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, token, id.Token)
	assert.False(t, id.SkipUserIDCheck)
	assert.Equal(t, "alice", id.Claims["username"])
}

func TestJWKModuleNoHeaderYieldsSentinel(t *testing.T) {
	f := newJWKSFixture(t, "key-1")
	m := newJWKModule(f.server.URL)

	r := httptest.NewRequest("GET", "/v1/models", nil)
	id, err := m.Authenticate(r)
	require.NoError(t, err)

	assert.Equal(t, UnauthenticatedUserID, id.UserID)
	assert.Equal(t, UnauthenticatedUsername, id.Username)
	// The sentinel path must not touch the network.
	assert.Equal(t, int64(0), f.fetches.Load())
}

func TestJWKModuleExpiredToken(t *testing.T) {
	f := newJWKSFixture(t, "key-1")
	m := newJWKModule(f.server.URL)

	token, err := jwt.NewBuilder().
		Claim("user_id", "u-42").
		IssuedAt(time.Now().Add(-2 * time.Hour)).
		Expiration(time.Now().Add(-time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, f.privateKey))
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer "+string(signed))

	_, err = m.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWKModuleWrongKeyRejected(t *testing.T) {
	f := newJWKSFixture(t, "key-1")
	other := newJWKSFixture(t, "key-1")
	m := newJWKModule(f.server.URL)

	// Signed by a key the module's JWKS does not contain.
	token := other.sign(t, map[string]any{"user_id": "u-42"})
	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err := m.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWKModuleGarbageToken(t *testing.T) {
	f := newJWKSFixture(t, "key-1")
	m := newJWKModule(f.server.URL)

	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer not.a.jwt")

	_, err := m.Authenticate(r)
	require.Error(t, err)
}

func TestJWKModuleMissingUserIDClaim(t *testing.T) {
	f := newJWKSFixture(t, "key-1")
	m := newJWKModule(f.server.URL)

	token := f.sign(t, map[string]any{"username": "alice"})
	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err := m.Authenticate(r)
	assert.ErrorIs(t, err, ErrTokenDecode)
}

func TestJWKModuleRequiredClaims(t *testing.T) {
	f := newJWKSFixture(t, "key-1")
	m := NewJWKModule(config.JWKConfig{
		URL:            f.server.URL,
		CacheTTL:       time.Hour,
		UserIDClaim:    "user_id",
		UsernameClaim:  "username",
		RequiredClaims: []string{"org"},
	})

	token := f.sign(t, map[string]any{"user_id": "u-42", "username": "alice"})
	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err := m.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWKSetCacheSingleFetchWithinTTL(t *testing.T) {
	f := newJWKSFixture(t, "key-1")
	m := newJWKModule(f.server.URL)

	token := f.sign(t, map[string]any{"user_id": "u-42", "username": "alice"})
	for i := 0; i < 5; i++ {
		r := httptest.NewRequest("POST", "/v1/query", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		_, err := m.Authenticate(r)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), f.fetches.Load())
}

func TestJWKModuleResolvesByAlgWithoutKid(t *testing.T) {
	f := newJWKSFixture(t, "")
	m := newJWKModule(f.server.URL)

	token := f.sign(t, map[string]any{"user_id": "u-42", "username": "alice"})
	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	id, err := m.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "u-42", id.UserID)
}
