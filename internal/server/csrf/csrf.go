// Package csrf issues and validates per-session anti-forgery tokens using
// the ephemeral store. One active token per session, overwritten on each
// login/signup/refresh.
package csrf

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
)

const keyPrefix = "csrf:"

const tokenBytes = 32

// Guard binds anti-forgery tokens to session tokens.
type Guard struct {
	store kvstore.Store
	ttl   time.Duration
}

// NewGuard creates a guard; ttl is the token lifetime (independent of the
// session TTL — a token may expire before its session and is re-issued on
// login or refresh).
func NewGuard(store kvstore.Store, ttl time.Duration) *Guard {
	return &Guard{store: store, ttl: ttl}
}

// Issue returns a fresh cryptographically random token.
func (g *Guard) Issue() (string, error) {
	token, err := common.MakeRandHexString(tokenBytes)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}

// Bind stores token keyed by the session token, replacing any prior token
// for that session.
func (g *Guard) Bind(ctx context.Context, sessionToken, token string) error {
	return g.store.Set(ctx, keyPrefix+sessionToken, token, g.ttl)
}

// Validate reports whether submitted matches the token bound to the
// session. Absent, expired, or mismatching tokens fail; the comparison is
// constant-time.
func (g *Guard) Validate(ctx context.Context, sessionToken, submitted string) bool {
	if submitted == "" {
		return false
	}
	stored, err := g.store.Get(ctx, keyPrefix+sessionToken)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

// Unbind drops the session's token, used when a session is revoked.
func (g *Guard) Unbind(ctx context.Context, sessionToken string) error {
	return g.store.Delete(ctx, keyPrefix+sessionToken)
}
