package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateAccessToken(t *testing.T) {
	issuer := NewTokenIssuer("super-secret", time.Minute, "aura-core")

	token, expiresAt, err := issuer.IssueAccessToken("tenant-1", "user-1", "session-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, time.Second)

	claims, err := issuer.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "session-1", claims.SessionID)
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("super-secret", -time.Minute, "aura-core")

	token, _, err := issuer.IssueAccessToken("tenant-1", "user-1", "session-1")
	require.NoError(t, err)

	_, err = issuer.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateAccessTokenRejectsWrongSigningKey(t *testing.T) {
	issuer := NewTokenIssuer("secret-a", time.Minute, "aura-core")
	other := NewTokenIssuer("secret-b", time.Minute, "aura-core")

	token, _, err := issuer.IssueAccessToken("tenant-1", "user-1", "session-1")
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigningKeyMatchesIssuedTokens(t *testing.T) {
	issuer := NewTokenIssuer("super-secret", time.Minute, "aura-core")
	assert.Equal(t, []byte("super-secret"), issuer.SigningKey())
}
