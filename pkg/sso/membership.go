package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/observability"
)

// DefaultRoleCacheTTL bounds how long a default role lookup is reused
const DefaultRoleCacheTTL = time.Minute

// MembershipSynchronizer grants the default role of every membership scope
// on each resolved group
type MembershipSynchronizer struct {
	roles       RoleStore
	memberships MembershipStore
	scopes      []auth.RoleScope
	cache       *expirable.LRU[auth.RoleScope, auth.Role]
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewMembershipSynchronizer creates a synchronizer over the fixed API and
// APPLICATION scopes. A zero ttl disables caching. metrics may be nil.
func NewMembershipSynchronizer(roles RoleStore, memberships MembershipStore, ttl time.Duration, metrics *observability.Metrics, logger *observability.Logger) *MembershipSynchronizer {
	s := &MembershipSynchronizer{
		roles:       roles,
		memberships: memberships,
		scopes:      auth.DefaultMembershipScopes,
		metrics:     metrics,
		logger:      logger,
	}
	if ttl > 0 {
		s.cache = expirable.NewLRU[auth.RoleScope, auth.Role](len(s.scopes), nil, ttl)
	}
	return s
}

// DefaultRoles returns the default role of each scope, in scope order.
// A scope without a default role is MissingDefaultRole.
func (s *MembershipSynchronizer) DefaultRoles(ctx context.Context) ([]auth.Role, error) {
	roles := make([]auth.Role, 0, len(s.scopes))
	for _, scope := range s.scopes {
		role, err := s.defaultRole(ctx, scope)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (s *MembershipSynchronizer) defaultRole(ctx context.Context, scope auth.RoleScope) (auth.Role, error) {
	if s.cache != nil {
		if role, ok := s.cache.Get(scope); ok {
			if s.metrics != nil {
				s.metrics.DefaultRoleCacheHits.Inc()
			}
			return role, nil
		}
		if s.metrics != nil {
			s.metrics.DefaultRoleCacheMisses.Inc()
		}
	}

	role, err := s.roles.FindDefaultRoleForScope(ctx, scope)
	if errors.Is(err, auth.ErrRoleNotFound) || (err == nil && role == nil) {
		s.logger.Errorf("no default role configured for scope %s", scope)
		return auth.Role{}, newError(KindMissingDefaultRole, "", 0, fmt.Sprintf("scope %s", scope), nil)
	}
	if err != nil {
		return auth.Role{}, fmt.Errorf("find default role for scope %s: %w", scope, err)
	}

	if s.cache != nil {
		s.cache.Add(scope, *role)
	}
	return *role, nil
}

// Sync issues one add-or-update membership per group and role, scoped to
// the group. It returns the number of memberships written before any error.
func (s *MembershipSynchronizer) Sync(ctx context.Context, username string, groups []auth.Group, roles []auth.Role) (int, error) {
	written := 0
	for _, group := range groups {
		for _, role := range roles {
			membership := &auth.Membership{
				ReferenceType: auth.MembershipReferenceGroup,
				ReferenceID:   group.ID,
				Username:      username,
				Scope:         role.Scope,
				RoleName:      role.Name,
			}
			if err := s.memberships.AddOrUpdateMembership(ctx, membership); err != nil {
				return written, fmt.Errorf("add %s to group %s with role %s: %w", username, group.Name, role.Name, err)
			}
			written++
			if s.metrics != nil {
				s.metrics.MembershipsWrittenTotal.WithLabelValues(string(role.Scope)).Inc()
			}
			s.logger.WithFields(map[string]interface{}{
				"username": username,
				"group":    group.Name,
				"scope":    string(role.Scope),
				"role":     role.Name,
			}).Debug("membership added")
		}
	}
	return written, nil
}
