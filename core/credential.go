package core

import "time"

// Credential is the bearer token pair issued by the booking API
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid reports whether both tokens are present
func (c Credential) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Identity is the profile of the authenticated user
type Identity struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// Snapshot is the persisted form of a session. Coordination state is never part of it.
type Snapshot struct {
	Credential Credential `json:"credential"`
	Identity   *Identity  `json:"identity,omitempty"`
}

// LoginResult is returned by the remote login endpoint
type LoginResult struct {
	Credential Credential
	Identity   Identity
	ExpiresIn  time.Duration
}

// RefreshResult is returned by the remote refresh endpoint.
// RefreshToken is empty when the server did not rotate it.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Registration holds the fields of a new account
type Registration struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

// ProfileUpdate holds the editable profile fields
type ProfileUpdate struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
}
