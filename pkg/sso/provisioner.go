package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/observability"
)

// ProvisionResult is the outcome of a just-in-time provisioning
type ProvisionResult struct {
	User    *auth.User
	Created bool
	// Groups and Roles are only set for newly created users
	Groups   []auth.Group
	Roles    []auth.Role
	Warnings []error
}

// UserProvisioner handles JIT (Just-In-Time) user provisioning keyed by username
type UserProvisioner struct {
	users       UserStore
	groups      *GroupResolver
	memberships *MembershipSynchronizer
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewUserProvisioner creates a new user provisioner. metrics may be nil.
func NewUserProvisioner(users UserStore, groups *GroupResolver, memberships *MembershipSynchronizer, metrics *observability.Metrics, logger *observability.Logger) *UserProvisioner {
	return &UserProvisioner{
		users:       users,
		groups:      groups,
		memberships: memberships,
		metrics:     metrics,
		logger:      logger,
	}
}

// Provision creates the user on first login or refreshes the mutable
// projection of an existing user. For new users, groups and default roles are
// resolved before the user is created so configuration defects abort the
// login with no side effects.
func (p *UserProvisioner) Provision(ctx context.Context, provider *Provider, identity *FederatedIdentity, doc interface{}) (*ProvisionResult, error) {
	_, err := p.users.FindUserByUsername(ctx, identity.Username)
	switch {
	case err == nil:
		return p.refresh(ctx, provider, identity)
	case errors.Is(err, auth.ErrUserNotFound):
		return p.create(ctx, provider, identity, doc)
	default:
		return nil, fmt.Errorf("find user %s: %w", identity.Username, err)
	}
}

func (p *UserProvisioner) create(ctx context.Context, provider *Provider, identity *FederatedIdentity, doc interface{}) (*ProvisionResult, error) {
	result := &ProvisionResult{}

	if len(provider.Config.GroupMappings) > 0 {
		resolution, err := p.groups.Resolve(ctx, provider, identity.Username, doc)
		if err != nil {
			return nil, err
		}
		result.Groups = resolution.Groups
		result.Warnings = resolution.Warnings

		if len(result.Groups) > 0 {
			roles, err := p.memberships.DefaultRoles(ctx)
			if err != nil {
				return nil, withProvider(err, provider.ID())
			}
			result.Roles = roles
		}
	}

	user, created, err := p.users.CreateUser(ctx, &auth.NewExternalUser{
		Username:  identity.Username,
		Email:     identity.Email,
		Firstname: identity.Firstname,
		Lastname:  identity.Lastname,
		Picture:   identity.Picture,
		Source:    provider.ID(),
		SourceID:  identity.SourceID,
	})
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", identity.Username, err)
	}

	if !created {
		// A concurrent login created the user first and owns its memberships
		p.logger.WithField("username", identity.Username).Info("user created concurrently, refreshing instead")
		return p.refresh(ctx, provider, identity)
	}

	p.logger.WithFields(map[string]interface{}{
		"provider": provider.ID(),
		"username": user.Username,
		"groups":   len(result.Groups),
	}).Info("provisioned new user")
	p.count(provider.ID(), "created")

	result.User = user
	result.Created = true
	return result, nil
}

func (p *UserProvisioner) refresh(ctx context.Context, provider *Provider, identity *FederatedIdentity) (*ProvisionResult, error) {
	update := &auth.UpdateUser{Username: identity.Username}
	if identity.Picture != "" {
		picture := identity.Picture
		update.Picture = &picture
	}

	user, err := p.users.UpdateUser(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("refresh user %s: %w", identity.Username, err)
	}

	p.count(provider.ID(), "refreshed")
	return &ProvisionResult{User: user}, nil
}

func (p *UserProvisioner) count(providerID, action string) {
	if p.metrics != nil {
		p.metrics.UsersProvisionedTotal.WithLabelValues(providerID, action).Inc()
	}
}

func withProvider(err error, providerID string) error {
	var fedErr *FederationError
	if errors.As(err, &fedErr) && fedErr.Provider == "" {
		fedErr.Provider = providerID
	}
	return err
}
