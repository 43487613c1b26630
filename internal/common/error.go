// Package common defines shared constants and sentinel errors used across
// the task service layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// ErrVersionConflict is returned when an optimistic-concurrency
	// precondition (expected task version) does not match the stored row.
	ErrVersionConflict = errors.New("version conflict")

	// ErrorRateLimited is returned when a fixed-window counter is over
	// its limit for the current window.
	ErrorRateLimited = errors.New("rate limited")

	// ErrorStoreUnavailable signals that the durable ephemeral backend is
	// unreachable. Depending on configuration the caller degrades to the
	// in-process fallback or fails fatally at startup.
	ErrorStoreUnavailable = errors.New("store unavailable")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
