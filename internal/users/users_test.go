package users_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formlane/internal/testsupport"
	"formlane/internal/users"
)

func TestFindByEmail(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("finds existing user", func(t *testing.T) {
		testUser := testsupport.CreateTestUser(t, db, "find@example.com", "password123")

		foundUser, err := users.FindByEmail(db, "find@example.com")

		require.NoError(t, err)
		assert.Equal(t, testUser.Email, foundUser.Email)
		assert.Equal(t, testUser.ID, foundUser.ID)
	})

	t.Run("returns error for missing user", func(t *testing.T) {
		_, err := users.FindByEmail(db, "nobody@example.com")
		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})
}

func TestCreateUser(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	t.Run("creates user with hashed password", func(t *testing.T) {
		user, err := users.CreateUser(logger, db, "Ana", "ana@example.com", "secret-password", users.RoleUser)

		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.Equal(t, users.RoleUser, user.Role)
		assert.NotEqual(t, "secret-password", user.EncryptedPassword)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := users.CreateUser(logger, db, "Ana", "dup@example.com", "secret-password", users.RoleUser)
		require.NoError(t, err)

		_, err = users.CreateUser(logger, db, "Ana Again", "dup@example.com", "other-password", users.RoleUser)
		assert.ErrorIs(t, err, users.ErrUserExists)
	})
}

func TestAuthenticate(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	testsupport.CreateTestUser(t, db, "login@example.com", "correct-horse")

	t.Run("accepts valid credentials", func(t *testing.T) {
		user, err := users.Authenticate(db, "login@example.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, "login@example.com", user.Email)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		_, err := users.Authenticate(db, "login@example.com", "battery-staple")
		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})

	t.Run("rejects unknown email", func(t *testing.T) {
		_, err := users.Authenticate(db, "ghost@example.com", "whatever")
		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})
}

func TestChangePassword(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	testsupport.CreateTestUser(t, db, "change@example.com", "old-password")

	require.NoError(t, users.ChangePassword(logger, db, "change@example.com", "new-password"))

	_, err := users.Authenticate(db, "change@example.com", "old-password")
	assert.Error(t, err)

	user, err := users.Authenticate(db, "change@example.com", "new-password")
	require.NoError(t, err)
	assert.Equal(t, "change@example.com", user.Email)
}

func TestResetPasswordFlow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	testsupport.CreateTestUser(t, db, "reset@example.com", "forgotten")

	token, err := users.GenerateResetToken(logger, db, "reset@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	t.Run("plaintext token is not stored", func(t *testing.T) {
		user, err := users.FindByEmail(db, "reset@example.com")
		require.NoError(t, err)
		require.True(t, user.ResetPasswordToken.Valid)
		assert.NotEqual(t, token, user.ResetPasswordToken.String)
	})

	t.Run("valid token resets the password", func(t *testing.T) {
		user, err := users.ResetPassword(logger, db, token, "brand-new-password")
		require.NoError(t, err)
		assert.Equal(t, "reset@example.com", user.Email)

		_, err = users.Authenticate(db, "reset@example.com", "brand-new-password")
		assert.NoError(t, err)
	})

	t.Run("token is single use", func(t *testing.T) {
		_, err := users.ResetPassword(logger, db, token, "yet-another-password")
		assert.ErrorIs(t, err, users.ErrResetTokenInvalid)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := users.ResetPassword(logger, db, "not-a-real-token", "password123")
		assert.ErrorIs(t, err, users.ErrResetTokenInvalid)
	})
}

func TestSetupAdminUserIfNotExists(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	users.SetupAdminUserIfNotExists(db, "admin@example.com")

	admin, err := users.FindByEmail(db, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, admin.Role)

	// A second call must not duplicate or overwrite the account.
	users.SetupAdminUserIfNotExists(db, "admin@example.com")

	all, err := users.GetAllUsers(db)
	require.NoError(t, err)
	count := 0
	for _, u := range all {
		if u.Email == "admin@example.com" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
