// Package models holds the persisted and wire-level entities of the task
// service.
package models

import "time"

// Provider identifies how an account authenticates.
type Provider string

const (
	ProviderCredentials Provider = "credentials"
	ProviderGoogle      Provider = "google"
)

// User is the identity row. PasswordDigest is set only for credential-based
// accounts and is never serialized.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	PasswordDigest string    `json:"-"`
	Provider       Provider  `json:"provider"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// UserSnapshot is the denormalized identity stored inside a session. It is
// captured at session creation and is not live-synced with the User row.
type UserSnapshot struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
}

// Snapshot returns the session-embedded view of the user.
func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{ID: u.ID, Email: u.Email, Name: u.Name, Provider: u.Provider}
}
