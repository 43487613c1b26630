package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

func TestUserService_SignupOpensSession(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	res, err := env.users.Signup(ctx, "alice@example.com", "Alice", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, res.User.ID)
	require.Equal(t, "alice@example.com", res.User.Email)
	require.Equal(t, models.ProviderCredentials, res.User.Provider)
	require.Len(t, res.SessionToken, 64)
	require.NotEmpty(t, res.CSRFToken)
	require.False(t, res.SessionExpiresAt.IsZero())
}

func TestUserService_SignupValidation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	cases := []struct {
		name, email, display, password string
	}{
		{"bad email", "not-an-email", "A", "longenough"},
		{"short password", "a@example.com", "A", "short"},
		{"empty name", "a@example.com", "   ", "longenough"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.users.Signup(ctx, tc.email, tc.display, tc.password)
			require.ErrorIs(t, err, common.ErrorValidation)
		})
	}
}

func TestUserService_SignupDuplicateEmail(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.users.Signup(ctx, "alice@example.com", "Alice", "correct-horse")
	require.NoError(t, err)

	_, err = env.users.Signup(ctx, "alice@example.com", "Imposter", "battery-staple")
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestUserService_LoginVerifiesPassword(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.users.Signup(ctx, "alice@example.com", "Alice", "correct-horse")
	require.NoError(t, err)

	res, err := env.users.Login(ctx, "alice@example.com", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "Alice", res.User.Name)

	_, err = env.users.Login(ctx, "alice@example.com", "wrong-password")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	// unknown accounts are indistinguishable from bad passwords
	_, err = env.users.Login(ctx, "nobody@example.com", "correct-horse")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestUserService_LogoutRevokesSession(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	res, err := env.users.Signup(ctx, "alice@example.com", "Alice", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, env.users.Logout(ctx, res.SessionToken))

	_, err = env.users.Refresh(ctx, res.SessionToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	// logging out twice is fine
	require.NoError(t, env.users.Logout(ctx, res.SessionToken))
}

func TestUserService_RefreshRotatesTokens(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	initial, err := env.users.Signup(ctx, "alice@example.com", "Alice", "correct-horse")
	require.NoError(t, err)

	refreshed, err := env.users.Refresh(ctx, initial.SessionToken)
	require.NoError(t, err)
	require.NotEqual(t, initial.SessionToken, refreshed.SessionToken)
	require.NotEqual(t, initial.CSRFToken, refreshed.CSRFToken)
	require.Equal(t, initial.User.ID, refreshed.User.ID)

	// the old token is dead, the new one works
	_, err = env.users.Refresh(ctx, initial.SessionToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = env.users.Refresh(ctx, refreshed.SessionToken)
	require.NoError(t, err)
}

func TestUserService_ForgotPasswordIsUniform(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	// unknown account: same outcome, no token issued
	require.NoError(t, env.users.ForgotPassword(ctx, "nobody@example.com"))
	_, logged := env.log.loggedValue("token")
	require.False(t, logged)

	_, err := env.users.Signup(ctx, "alice@example.com", "Alice", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, env.users.ForgotPassword(ctx, "alice@example.com"))
	_, logged = env.log.loggedValue("token")
	require.True(t, logged)
}

func TestUserService_ResetPasswordFlow(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.users.Signup(ctx, "alice@example.com", "Alice", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, env.users.ForgotPassword(ctx, "alice@example.com"))

	v, ok := env.log.loggedValue("token")
	require.True(t, ok)
	token := v.(string)

	require.NoError(t, env.users.ResetPassword(ctx, token, "battery-staple"))

	_, err = env.users.Login(ctx, "alice@example.com", "correct-horse")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = env.users.Login(ctx, "alice@example.com", "battery-staple")
	require.NoError(t, err)

	// single use
	err = env.users.ResetPassword(ctx, token, "third-password")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestUserService_ResetPasswordBadToken(t *testing.T) {
	env := setupEnv(t)
	err := env.users.ResetPassword(context.Background(), "bogus", "longenough")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestUserService_ResetPasswordTooShort(t *testing.T) {
	env := setupEnv(t)
	err := env.users.ResetPassword(context.Background(), "whatever", "short")
	require.ErrorIs(t, err, common.ErrorValidation)
}
