// Package services contains server-side business logic. This file implements
// UserService: signup, login, logout, session refresh, and the
// forgot/reset-password flow.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bashaMendi/ToDo-back/internal/common"
	"github.com/bashaMendi/ToDo-back/internal/dbx"
	"github.com/bashaMendi/ToDo-back/internal/logging"
	"github.com/bashaMendi/ToDo-back/internal/server/config"
	"github.com/bashaMendi/ToDo-back/internal/server/csrf"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
	"github.com/bashaMendi/ToDo-back/internal/server/repositories/repomanager"
	"github.com/bashaMendi/ToDo-back/internal/server/sessions"
)

const resetKeyPrefix = "pwdreset:"

const minPasswordLen = 8

// AuthResult bundles everything a successful signup/login/refresh returns:
// the user, the session token with its absolute expiry, and the CSRF token
// bound to that session.
type AuthResult struct {
	User             models.User
	SessionToken     string
	SessionExpiresAt time.Time
	CSRFToken        string
}

// UserService provides authentication-related operations on top of the user
// repository, the session manager, and the CSRF guard.
type UserService struct {
	db       dbx.DBTX
	repos    repomanager.RepositoryManager
	sessions *sessions.Manager
	guard    *csrf.Guard
	store    kvstore.Store
	cfg      *config.Config
	logger   logging.Logger
}

// NewUserService constructs a UserService using repositories and server
// config.
func NewUserService(db dbx.DBTX, repos repomanager.RepositoryManager, sm *sessions.Manager, guard *csrf.Guard, store kvstore.Store, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:       db,
		repos:    repos,
		sessions: sm,
		guard:    guard,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("module", "users"),
	}
}

// Signup creates a credential-based account and opens a session for it.
func (s *UserService) Signup(ctx context.Context, email, name, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrorValidation)
	}

	repo := s.repos.Users(s.db)
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", common.ErrorValidation)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorInternal
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user, err := repo.Create(ctx, &models.User{
		Email:          email,
		Name:           name,
		PasswordDigest: string(digest),
		Provider:       models.ProviderCredentials,
	})
	if err != nil {
		// a concurrent signup can win between the pre-check and the insert
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, fmt.Errorf("%w: email already registered", common.ErrorValidation)
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return s.openSession(ctx, user)
}

// Login verifies credentials and opens a session. Unknown accounts and bad
// passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	repo := s.repos.Users(s.db)
	user, err := repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if user.PasswordDigest == "" {
		return nil, common.ErrorUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordDigest), []byte(password)) != nil {
		return nil, common.ErrorUnauthorized
	}
	return s.openSession(ctx, user)
}

// Logout revokes the session and its CSRF binding. Revoking an absent
// session is not an error.
func (s *UserService) Logout(ctx context.Context, sessionToken string) error {
	if err := s.sessions.Delete(ctx, sessionToken); err != nil {
		return err
	}
	return s.guard.Unbind(ctx, sessionToken)
}

// Refresh rotates the session token and re-binds a fresh CSRF token, giving
// long-lived clients a way to renew both.
func (s *UserService) Refresh(ctx context.Context, sessionToken string) (*AuthResult, error) {
	newToken, expiresAt, sess, err := s.sessions.Refresh(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	_ = s.guard.Unbind(ctx, sessionToken)

	csrfToken, err := s.guard.Issue()
	if err != nil {
		return nil, err
	}
	if err := s.guard.Bind(ctx, newToken, csrfToken); err != nil {
		return nil, err
	}

	return &AuthResult{
		User: models.User{
			ID:       sess.User.ID,
			Email:    sess.User.Email,
			Name:     sess.User.Name,
			Provider: sess.User.Provider,
		},
		SessionToken:     newToken,
		SessionExpiresAt: expiresAt,
		CSRFToken:        csrfToken,
	}, nil
}

// ForgotPassword issues a single-use reset token when the account exists.
// The caller-visible outcome is identical whether or not the account exists,
// to prevent enumeration; delivery is out of scope, so the token is logged
// server-side for the mail pipeline to pick up.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	repo := s.repos.Users(s.db)
	user, err := repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return common.ErrorInternal
	}
	if user.Provider != models.ProviderCredentials {
		return nil
	}

	token, err := common.MakeRandHexString(32)
	if err != nil {
		return common.ErrorInternal
	}
	reset := models.PasswordReset{Email: user.Email, ExpiresAt: time.Now().Add(s.cfg.ResetTokenDuration)}
	raw, err := json.Marshal(reset)
	if err != nil {
		return common.ErrorInternal
	}
	if err := s.store.Set(ctx, resetKeyPrefix+token, string(raw), s.cfg.ResetTokenDuration); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	s.logger.Info(ctx, "password reset token issued", "email", user.Email, "token", token)
	return nil
}

// ResetPassword redeems a reset token. The token is deleted on success
// (single use).
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLen)
	}

	raw, err := s.store.Get(ctx, resetKeyPrefix+token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return err
	}

	var reset models.PasswordReset
	if err := json.Unmarshal([]byte(raw), &reset); err != nil {
		return common.ErrorInternal
	}
	if time.Now().After(reset.ExpiresAt) {
		_ = s.store.Delete(ctx, resetKeyPrefix+token)
		return common.ErrTokenExpired
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return common.ErrorInternal
	}
	if err := s.repos.Users(s.db).UpdatePasswordDigest(ctx, reset.Email, string(digest)); err != nil {
		return err
	}
	return s.store.Delete(ctx, resetKeyPrefix+token)
}

// --- helpers below ---

func (s *UserService) openSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	token, expiresAt, err := s.sessions.Create(ctx, user.Snapshot())
	if err != nil {
		return nil, err
	}
	csrfToken, err := s.guard.Issue()
	if err != nil {
		return nil, err
	}
	if err := s.guard.Bind(ctx, token, csrfToken); err != nil {
		return nil, err
	}
	return &AuthResult{
		User:             *user,
		SessionToken:     token,
		SessionExpiresAt: expiresAt,
		CSRFToken:        csrfToken,
	}, nil
}

func validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLen)
	}
	return nil
}
