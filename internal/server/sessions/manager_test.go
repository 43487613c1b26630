package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

func testUser() models.UserSnapshot {
	return models.UserSnapshot{
		ID:       "u-1",
		Email:    "alice@example.com",
		Name:     "Alice",
		Provider: models.ProviderCredentials,
	}
}

func newManager(t *testing.T, ttl time.Duration) (*Manager, *kvstore.MemoryStore) {
	t.Helper()
	store := kvstore.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store, ttl), store
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newManager(t, time.Hour)
	ctx := context.Background()

	token, expiresAt, err := m.Create(ctx, testUser())
	require.NoError(t, err)
	require.Len(t, token, 64)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)

	sess, err := m.Get(ctx, token)
	require.NoError(t, err)
	require.Equal(t, testUser(), sess.User)
	require.WithinDuration(t, expiresAt, sess.ExpiresAt, time.Second)
}

func TestManager_GetUnknownToken(t *testing.T) {
	m, _ := newManager(t, time.Hour)
	_, err := m.Get(context.Background(), "deadbeef")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestManager_LazyExpiryClearsSlot(t *testing.T) {
	m, store := newManager(t, -time.Minute) // already expired at creation
	ctx := context.Background()

	token, _, err := m.Create(ctx, testUser())
	require.NoError(t, err)

	_, err = m.Get(ctx, token)
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.Equal(t, 0, store.Len(), "expired session must be deleted on read")

	// idempotently safe to look up again
	_, err = m.Get(ctx, token)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestManager_DeleteIsIdempotent(t *testing.T) {
	m, _ := newManager(t, time.Hour)
	ctx := context.Background()

	token, _, err := m.Create(ctx, testUser())
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, token))
	require.NoError(t, m.Delete(ctx, token))

	_, err = m.Get(ctx, token)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestManager_RefreshRotatesToken(t *testing.T) {
	m, _ := newManager(t, time.Hour)
	ctx := context.Background()

	oldToken, _, err := m.Create(ctx, testUser())
	require.NoError(t, err)

	newToken, expiresAt, sess, err := m.Refresh(ctx, oldToken)
	require.NoError(t, err)
	require.NotEqual(t, oldToken, newToken)
	require.Equal(t, testUser(), sess.User)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)

	_, err = m.Get(ctx, oldToken)
	require.ErrorIs(t, err, common.ErrorNotFound, "old token must be revoked")

	got, err := m.Get(ctx, newToken)
	require.NoError(t, err)
	require.Equal(t, testUser(), got.User)
}

func TestManager_RefreshUnknownToken(t *testing.T) {
	m, _ := newManager(t, time.Hour)
	_, _, _, err := m.Refresh(context.Background(), "deadbeef")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
