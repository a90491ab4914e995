package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopDefaults(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/query", nil)

	id, err := NewNoop().Authenticate(r)
	require.NoError(t, err)

	assert.Equal(t, DefaultUserID, id.UserID)
	assert.Equal(t, DefaultUsername, id.Username)
	assert.True(t, id.SkipUserIDCheck)
	assert.Empty(t, id.Token)
}

func TestNoopUserIDOverrideFromQuery(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/query?user_id=alice", nil)

	id, err := NewNoop().Authenticate(r)
	require.NoError(t, err)

	assert.Equal(t, "alice", id.UserID)
	assert.True(t, id.SkipUserIDCheck)
}

func TestNoopWithToken(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/query", nil)
	r.Header.Set("Authorization", "Bearer tok-123")

	id, err := NewNoopWithToken().Authenticate(r)
	require.NoError(t, err)

	assert.Equal(t, "tok-123", id.Token)
	assert.True(t, id.SkipUserIDCheck)
}

func TestNoopWithTokenRequiresBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong_scheme", "Basic dXNlcjpwdw=="},
		{"empty_token", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/v1/query", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			_, err := NewNoopWithToken().Authenticate(r)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}
