package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken("u1", RoleUser)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.SubjectID)
	assert.Equal(t, RoleUser, claims.Role)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).GenerateToken("u1", RoleUser)
	require.NoError(t, err)

	_, err = NewService("secret-b", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewService("test-secret", -time.Minute)
	token, err := svc.GenerateToken("u1", RoleSeller)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestHasRole(t *testing.T) {
	assert.True(t, (&Claims{Role: RoleSeller}).HasRole(RoleSeller))
	assert.False(t, (&Claims{Role: RoleUser}).HasRole(RoleSeller))
	// Admin passes every role gate.
	assert.True(t, (&Claims{Role: RoleAdmin}).HasRole(RoleUser))
	assert.True(t, (&Claims{Role: RoleAdmin}).HasRole(RoleSeller))
}
