package sso

import (
	"context"

	"github.com/platinummonkey/federate/pkg/auth"
)

// UserStore persists local users
type UserStore interface {
	// FindUserByUsername returns auth.ErrUserNotFound when no user exists
	FindUserByUsername(ctx context.Context, username string) (*auth.User, error)
	// CreateUser creates the user if no user has its username. created is
	// false when another login created it first; the existing user is returned.
	CreateUser(ctx context.Context, user *auth.NewExternalUser) (u *auth.User, created bool, err error)
	// UpdateUser refreshes the mutable projection of an existing user
	UpdateUser(ctx context.Context, update *auth.UpdateUser) (*auth.User, error)
}

// GroupStore looks up groups by exact name
type GroupStore interface {
	FindGroupsByName(ctx context.Context, name string) ([]auth.Group, error)
}

// RoleStore looks up the default role of a scope
type RoleStore interface {
	// FindDefaultRoleForScope returns auth.ErrRoleNotFound when the scope has no default role
	FindDefaultRoleForScope(ctx context.Context, scope auth.RoleScope) (*auth.Role, error)
}

// MembershipStore writes memberships
type MembershipStore interface {
	AddOrUpdateMembership(ctx context.Context, membership *auth.Membership) error
}

// Store is the full persistence collaborator of the pipeline
type Store interface {
	UserStore
	GroupStore
	RoleStore
	MembershipStore
}
