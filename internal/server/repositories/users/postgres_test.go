package users

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

func setupRepo(t *testing.T) *PostgresRepository {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`
		CREATE TABLE users (
			id              TEXT PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE,
			name            TEXT NOT NULL,
			password_digest TEXT,
			provider        TEXT NOT NULL DEFAULT 'credentials',
			created_at      TIMESTAMP NOT NULL,
			updated_at      TIMESTAMP NOT NULL
		)`)
	require.NoError(t, err)
	return NewPostgresRepository(db)
}

func TestCreateAndGetByEmail(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	u, err := r.Create(ctx, &models.User{
		Email:          "alice@example.com",
		Name:           "Alice",
		PasswordDigest: "digest",
		Provider:       models.ProviderCredentials,
	})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	got, err := r.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "Alice", got.Name)
	require.Equal(t, "digest", got.PasswordDigest)
	require.Equal(t, models.ProviderCredentials, got.Provider)
}

func TestGetByEmail_CaseSensitiveAsStored(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, &models.User{Email: "Bob@example.com", Name: "Bob", Provider: models.ProviderCredentials})
	require.NoError(t, err)

	_, err = r.GetByEmail(ctx, "bob@example.com")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDuplicateEmailRejected(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, &models.User{Email: "dup@example.com", Name: "One", Provider: models.ProviderCredentials})
	require.NoError(t, err)
	_, err = r.Create(ctx, &models.User{Email: "dup@example.com", Name: "Two", Provider: models.ProviderCredentials})
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestUpdatePasswordDigest(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, &models.User{Email: "c@example.com", Name: "C", PasswordDigest: "old", Provider: models.ProviderCredentials})
	require.NoError(t, err)

	require.NoError(t, r.UpdatePasswordDigest(ctx, "c@example.com", "new"))
	got, err := r.GetByEmail(ctx, "c@example.com")
	require.NoError(t, err)
	require.Equal(t, "new", got.PasswordDigest)

	require.ErrorIs(t, r.UpdatePasswordDigest(ctx, "nobody@example.com", "x"), common.ErrorNotFound)
}
