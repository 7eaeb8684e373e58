package domain

import "time"

// Role determines what an account may provision and moderate.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
	RoleUser   Role = "USER"
)

// Valid reports whether the role is one of the three known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleUser:
		return true
	}
	return false
}

// Staff reports whether the role carries moderation rights over
// registrations (approve, waitlist, cancel on behalf of members).
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleEditor
}

// Account is a holder of credentials and a role within the club.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
}

// Sanitized returns a copy safe to hand back to callers: the credential
// hash never leaves the core.
func (a Account) Sanitized() Account {
	a.PasswordHash = ""
	return a
}
