// Package auth defines the local identity model the federation pipeline
// provisions into: users, groups, roles and memberships, plus the session
// token generator and the request-scoped authentication context.
//
// # Users
//
// A User is keyed by Username. Federated users always use the e-mail address
// returned by the identity provider as their username:
//
//	user := &auth.NewExternalUser{
//		Username: "alice@example.com",
//		Email:    "alice@example.com",
//		Source:   "github",
//		SourceID: "4242",
//	}
//
// Identity fields (SourceID, Firstname, Lastname) are written once at
// creation. Later logins only refresh the mutable projection via UpdateUser.
//
// # Groups, Roles and Memberships
//
// Groups are looked up by name. Each RoleScope (API, APPLICATION) has one
// default Role, and a Membership grants that role to a user on a group:
//
//	m := &auth.Membership{
//		ReferenceType: auth.MembershipReferenceGroup,
//		ReferenceID:   group.ID,
//		Username:      user.Username,
//		Scope:         auth.RoleScopeAPI,
//		RoleName:      role.Name,
//	}
//
// # Session Tokens
//
//	generator := auth.NewTokenGenerator()
//	token, hash, prefix, err := generator.GenerateToken()
//	// token: fed_xxx (returned to the client once)
//	// hash:  SHA256(token) (stored server side)
//
// # Authentication Context
//
// AuthContext is never stored globally. The session middleware resolves it
// per request and attaches it to the request context (see pkg/contextkeys).
package auth
