package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTHandler_GenerateAndValidate(t *testing.T) {
	h, err := NewJWTHandler("test-secret", nil)
	require.NoError(t, err)

	token, err := h.GenerateToken("alice", "operator", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := h.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "operator", claims.Role)
}

func TestJWTHandler_RejectsInvalidRole(t *testing.T) {
	h, err := NewJWTHandler("test-secret", nil)
	require.NoError(t, err)

	_, err = h.GenerateToken("alice", "admin", time.Hour)
	assert.Error(t, err)
}

func TestJWTHandler_RejectsExpiredToken(t *testing.T) {
	h, err := NewJWTHandler("test-secret", nil)
	require.NoError(t, err)

	token, err := h.GenerateToken("alice", "operator", -time.Minute)
	require.NoError(t, err)

	_, err = h.ValidateToken(token)
	assert.ErrorContains(t, err, "expired")
}

func TestJWTHandler_RejectsWrongSecret(t *testing.T) {
	h1, err := NewJWTHandler("secret-one", nil)
	require.NoError(t, err)
	h2, err := NewJWTHandler("secret-two", nil)
	require.NoError(t, err)

	token, err := h1.GenerateToken("alice", "operator", time.Hour)
	require.NoError(t, err)

	_, err = h2.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTHandler_RejectsEmptyToken(t *testing.T) {
	h, err := NewJWTHandler("test-secret", nil)
	require.NoError(t, err)

	_, err = h.ValidateToken("")
	assert.Error(t, err)
}

func TestNewJWTHandler_RequiresSecret(t *testing.T) {
	_, err := NewJWTHandler("", nil)
	assert.Error(t, err)
}
