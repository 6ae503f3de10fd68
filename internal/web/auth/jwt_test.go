package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	s := NewTokenService("test-secret", time.Hour)

	token, err := s.Issue("ci", ScopeAdmin)
	require.NoError(t, err)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)
	assert.Equal(t, "metagraph", claims.Issuer)
	assert.True(t, claims.HasScope(ScopeAdmin))
	assert.False(t, claims.HasScope("write"))
	assert.NotNil(t, claims.ExpiresAt)
}

func TestTokenService_Rejects(t *testing.T) {
	s := NewTokenService("test-secret", time.Hour)
	valid, err := s.Issue("ci", ScopeAdmin)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenService("other-secret", time.Hour).Validate(valid)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		past := NewTokenService("test-secret", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := past.Issue("ci")
		require.NoError(t, err)

		_, err = s.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("other algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "metagraph", Subject: "ci"},
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = s.Validate(token)
		assert.Error(t, err)
	})

	t.Run("other issuer", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = s.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Validate("not.a.token")
		assert.Error(t, err)
	})
}

func TestTokenService_NoSecret(t *testing.T) {
	s := NewTokenService("", 0)

	_, err := s.Issue("ci")
	assert.True(t, errors.Is(err, ErrNoSecret))
	_, err = s.Validate("x")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestTokenService_NoExpiry(t *testing.T) {
	s := NewTokenService("test-secret", 0)
	token, err := s.Issue("ci")
	require.NoError(t, err)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
	assert.Empty(t, claims.Scopes)
}
