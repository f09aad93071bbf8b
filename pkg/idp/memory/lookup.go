package memory

import (
	"fmt"
	"sort"
	"strings"
)

// User is one configured identity
type User struct {
	Username string   `yaml:"username"`
	Roles    []string `yaml:"roles"`
}

// Identity is the view of a user returned by lookups
type Identity struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
}

// Lookup answers identity queries over a fixed set of users
type Lookup struct {
	identities map[string]Identity
	usernames  []string // sorted
}

// NewLookup indexes users. Usernames must be non-empty and unique.
func NewLookup(users []User) (*Lookup, error) {
	l := &Lookup{
		identities: make(map[string]Identity, len(users)),
		usernames:  make([]string, 0, len(users)),
	}

	for i, u := range users {
		username := strings.TrimSpace(u.Username)
		if username == "" {
			return nil, fmt.Errorf("users[%d]: username is required", i)
		}
		if _, exists := l.identities[username]; exists {
			return nil, fmt.Errorf("users[%d]: duplicate username %q", i, username)
		}
		l.identities[username] = Identity{
			Username: username,
			Roles:    normalizeRoles(u.Roles),
		}
		l.usernames = append(l.usernames, username)
	}

	sort.Strings(l.usernames)
	return l, nil
}

// Retrieve returns the identity for username. The second result is false
// when no such user is configured.
func (l *Lookup) Retrieve(username string) (*Identity, bool) {
	identity, ok := l.identities[username]
	if !ok {
		return nil, false
	}
	return cloneIdentity(identity), true
}

// Search returns every identity whose username contains query, ordered by
// username. An empty query matches everyone.
func (l *Lookup) Search(query string) []Identity {
	results := make([]Identity, 0)
	for _, username := range l.usernames {
		if strings.Contains(username, query) {
			results = append(results, *cloneIdentity(l.identities[username]))
		}
	}
	return results
}

// Len returns the number of configured users
func (l *Lookup) Len() int {
	return len(l.usernames)
}

func cloneIdentity(identity Identity) *Identity {
	out := identity
	if identity.Roles != nil {
		out.Roles = append([]string(nil), identity.Roles...)
	}
	return &out
}

// normalizeRoles trims, upper-cases and de-duplicates role names
func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToUpper(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
