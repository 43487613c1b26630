// Package sessions issues, validates, refreshes, and revokes session tokens
// on top of the ephemeral store. The opaque token is the store key; the
// value is a denormalized user snapshot plus the absolute expiry.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

const keyPrefix = "session:"

// tokenBytes is the entropy of a session token (64 hex chars on the wire).
const tokenBytes = 32

// Manager owns the session lifecycle.
type Manager struct {
	store kvstore.Store
	ttl   time.Duration
}

// NewManager binds the manager to a store; ttl is the session duration.
func NewManager(store kvstore.Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

// Create mints a fresh token and stores the user snapshot under it with
// TTL = session duration. It returns the token and the absolute expiry.
func (m *Manager) Create(ctx context.Context, user models.UserSnapshot) (string, time.Time, error) {
	token, err := common.MakeRandHexString(tokenBytes)
	if err != nil {
		return "", time.Time{}, common.ErrorInternal
	}

	expiresAt := time.Now().Add(m.ttl)
	raw, err := json.Marshal(models.Session{User: user, ExpiresAt: expiresAt})
	if err != nil {
		return "", time.Time{}, common.ErrorInternal
	}

	if err := m.store.Set(ctx, keyPrefix+token, string(raw), m.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("storing session: %w", err)
	}
	return token, expiresAt, nil
}

// Get returns the session behind token, or common.ErrorNotFound. A stored
// session whose absolute expiry has passed is deleted and reported absent —
// a lazy-expiry safety net on top of the store TTL.
func (m *Manager) Get(ctx context.Context, token string) (*models.Session, error) {
	raw, err := m.store.Get(ctx, keyPrefix+token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, common.ErrorInternal
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = m.store.Delete(ctx, keyPrefix+token)
		return nil, common.ErrorNotFound
	}
	return &sess, nil
}

// Delete removes the session unconditionally. Deleting an absent token is
// not an error.
func (m *Manager) Delete(ctx context.Context, token string) error {
	return m.store.Delete(ctx, keyPrefix+token)
}

// Refresh issues a new session for the same user, then revokes the old
// token. The new token is stored before the old one is removed so a crash
// mid-swap never leaves the caller without any valid session.
func (m *Manager) Refresh(ctx context.Context, oldToken string) (string, time.Time, *models.Session, error) {
	sess, err := m.Get(ctx, oldToken)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	newToken, expiresAt, err := m.Create(ctx, sess.User)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	_ = m.Delete(ctx, oldToken)

	refreshed := &models.Session{User: sess.User, ExpiresAt: expiresAt}
	return newToken, expiresAt, refreshed, nil
}
