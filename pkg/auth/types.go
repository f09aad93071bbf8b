package auth

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned by user lookups when no user has the username.
	ErrUserNotFound = errors.New("user not found")

	// ErrRoleNotFound is returned when no default role exists for a scope.
	ErrRoleNotFound = errors.New("role not found")
)

// User represents a locally provisioned user
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Firstname string    `json:"firstname,omitempty"`
	Lastname  string    `json:"lastname,omitempty"`
	Picture   string    `json:"picture,omitempty"`
	Source    string    `json:"source"`              // Provider tag that created the user
	SourceID  string    `json:"source_id,omitempty"` // User ID at the provider
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns "Firstname Lastname", falling back to the username
func (u *User) DisplayName() string {
	switch {
	case u.Firstname != "" && u.Lastname != "":
		return u.Firstname + " " + u.Lastname
	case u.Firstname != "":
		return u.Firstname
	case u.Lastname != "":
		return u.Lastname
	default:
		return u.Username
	}
}

// NewExternalUser is the payload used to create a user coming from an
// external identity provider
type NewExternalUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
	Picture   string `json:"picture,omitempty"`
	Source    string `json:"source"`
	SourceID  string `json:"source_id,omitempty"`
}

// UpdateUser refreshes the mutable projection of an existing user.
// Nil fields are left untouched.
type UpdateUser struct {
	Username string  `json:"username"`
	Picture  *string `json:"picture,omitempty"`
}

// Group is a named collection of members
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleScope classifies the permission level a role applies to
type RoleScope string

const (
	RoleScopeAPI         RoleScope = "API"
	RoleScopeApplication RoleScope = "APPLICATION"
)

// DefaultMembershipScopes are the scopes granted to a user joining a group
var DefaultMembershipScopes = []RoleScope{RoleScopeAPI, RoleScopeApplication}

// Role is a named set of permissions within a scope
type Role struct {
	Name        string    `json:"name"`
	Scope       RoleScope `json:"scope"`
	Description string    `json:"description,omitempty"`
	Default     bool      `json:"default"` // Granted to new group members
}

// MembershipReferenceType identifies what a membership is attached to
type MembershipReferenceType string

const (
	MembershipReferenceGroup       MembershipReferenceType = "GROUP"
	MembershipReferenceAPI         MembershipReferenceType = "API"
	MembershipReferenceApplication MembershipReferenceType = "APPLICATION"
)

// Membership grants a role to a user on a referenced entity
type Membership struct {
	ReferenceType MembershipReferenceType `json:"reference_type"`
	ReferenceID   string                  `json:"reference_id"`
	Username      string                  `json:"username"`
	Scope         RoleScope               `json:"scope"`
	RoleName      string                  `json:"role_name"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// AuthContext holds the authenticated principal for one request
type AuthContext struct {
	Username  string
	Email     string
	Provider  string
	SessionID string // Hash of the session token
	ExpiresAt time.Time
	User      *User
}

// IsAuthenticated reports whether a principal is bound
func (ac *AuthContext) IsAuthenticated() bool {
	return ac != nil && ac.Username != ""
}

// Expired reports whether the session behind the context has expired
func (ac *AuthContext) Expired(now time.Time) bool {
	return !ac.ExpiresAt.IsZero() && !now.Before(ac.ExpiresAt)
}
