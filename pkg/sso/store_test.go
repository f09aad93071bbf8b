package sso

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/federate/pkg/auth"
)

// memoryStore is an in-memory Store that records every call
type memoryStore struct {
	mu          sync.Mutex
	users       map[string]*auth.User
	groups      []auth.Group
	roles       map[auth.RoleScope]*auth.Role
	memberships []auth.Membership

	findGroupCalls int
	roleCalls      int
	createCalls    int
	updates        []auth.UpdateUser

	// raceOnCreate simulates a concurrent login creating the user first
	raceOnCreate bool
	failMembers  error
}

var _ Store = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users: make(map[string]*auth.User),
		roles: map[auth.RoleScope]*auth.Role{
			auth.RoleScopeAPI:         {Name: "USER", Scope: auth.RoleScopeAPI, Default: true},
			auth.RoleScopeApplication: {Name: "USER", Scope: auth.RoleScopeApplication, Default: true},
		},
	}
}

func (s *memoryStore) addGroup(id, name string, createdAt time.Time) {
	s.groups = append(s.groups, auth.Group{ID: id, Name: name, CreatedAt: createdAt})
}

func (s *memoryStore) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memoryStore) CreateUser(ctx context.Context, nu *auth.NewExternalUser) (*auth.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++

	if s.raceOnCreate {
		s.users[nu.Username] = &auth.User{ID: "u-race", Username: nu.Username, Email: nu.Email, Source: nu.Source}
	}
	if existing, ok := s.users[nu.Username]; ok {
		copied := *existing
		return &copied, false, nil
	}

	u := &auth.User{
		ID:        fmt.Sprintf("u-%d", len(s.users)+1),
		Username:  nu.Username,
		Email:     nu.Email,
		Firstname: nu.Firstname,
		Lastname:  nu.Lastname,
		Picture:   nu.Picture,
		Source:    nu.Source,
		SourceID:  nu.SourceID,
	}
	s.users[nu.Username] = u
	copied := *u
	return &copied, true, nil
}

func (s *memoryStore) UpdateUser(ctx context.Context, update *auth.UpdateUser) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, *update)

	u, ok := s.users[update.Username]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	if update.Picture != nil {
		u.Picture = *update.Picture
	}
	copied := *u
	return &copied, nil
}

func (s *memoryStore) FindGroupsByName(ctx context.Context, name string) ([]auth.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findGroupCalls++

	var out []auth.Group
	for _, g := range s.groups {
		if g.Name == name {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *memoryStore) FindDefaultRoleForScope(ctx context.Context, scope auth.RoleScope) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleCalls++

	role, ok := s.roles[scope]
	if !ok {
		return nil, auth.ErrRoleNotFound
	}
	copied := *role
	return &copied, nil
}

func (s *memoryStore) AddOrUpdateMembership(ctx context.Context, m *auth.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMembers != nil {
		return s.failMembers
	}
	for i, existing := range s.memberships {
		if existing.ReferenceType == m.ReferenceType && existing.ReferenceID == m.ReferenceID &&
			existing.Username == m.Username && existing.Scope == m.Scope {
			s.memberships[i].RoleName = m.RoleName
			return nil
		}
	}
	s.memberships = append(s.memberships, *m)
	return nil
}

func (s *memoryStore) membershipCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memberships)
}
