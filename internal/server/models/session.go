package models

import "time"

// Session is the value stored in the ephemeral store under the opaque
// session token; the token itself is the key, not a field.
type Session struct {
	User      UserSnapshot `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// PasswordReset is the single-use value behind a password-reset token.
type PasswordReset struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}
