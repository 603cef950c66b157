package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formlane/internal/auth"
	"formlane/internal/config"
	"formlane/internal/users"
)

func testConfig(ttl int) *config.Config {
	return &config.Config{
		PrivateKey:      "test-signing-key",
		TokenTTLSeconds: ttl,
	}
}

func TestIssueAndParseToken(t *testing.T) {
	cfg := testConfig(3600)
	user := &users.User{Name: "Ana", Email: "ana@example.com", Role: users.RoleAdmin}
	user.ID = 42

	token, err := auth.IssueToken(cfg, user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, users.RoleAdmin, claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestParseTokenRejectsWrongKey(t *testing.T) {
	user := &users.User{Role: users.RoleUser}
	user.ID = 1

	token, err := auth.IssueToken(testConfig(3600), user)
	require.NoError(t, err)

	other := testConfig(3600)
	other.PrivateKey = "a-different-key"

	_, err = auth.ParseToken(other, token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	user := &users.User{Role: users.RoleUser}
	user.ID = 1

	token, err := auth.IssueToken(testConfig(-60), user)
	require.NoError(t, err)

	_, err = auth.ParseToken(testConfig(-60), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := auth.ParseToken(testConfig(3600), "not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
