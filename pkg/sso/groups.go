package sso

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/observability"
)

// GroupResolution is the outcome of evaluating a provider's group mappings
type GroupResolution struct {
	Groups   []auth.Group
	Warnings []error
}

// GroupResolver turns matching group mappings into existing groups
type GroupResolver struct {
	store   GroupStore
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewGroupResolver creates a new group resolver. metrics may be nil.
func NewGroupResolver(store GroupStore, metrics *observability.Metrics, logger *observability.Logger) *GroupResolver {
	return &GroupResolver{
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve evaluates every group mapping of the provider against the profile
// document. A named group that does not exist aborts with
// MissingGroupConfiguration. A name shared by several groups resolves to the
// oldest one and adds an AmbiguousGroupName warning. Each name is looked up
// once per call, however many mappings list it.
func (r *GroupResolver) Resolve(ctx context.Context, provider *Provider, username string, doc interface{}) (*GroupResolution, error) {
	result := &GroupResolution{}
	seen := make(map[string]struct{})
	byName := make(map[string]auth.Group)
	logger := r.logger.WithFields(map[string]interface{}{
		"provider": provider.ID(),
		"username": username,
	})

	for i, mapping := range provider.Config.GroupMappings {
		condition := provider.conditions[i]

		match, err := condition.Evaluate(doc)
		if err != nil {
			logger.WithError(err).Warnf("group mapping condition %q failed, treating as no match", condition.String())
			match = false
		}
		if match {
			logger.Debugf("the expression %q matches the user's profile", condition.String())
		} else {
			logger.Debugf("the expression %q does not match the user's profile", condition.String())
			continue
		}

		for _, name := range mapping.Groups {
			if _, done := byName[name]; done {
				continue
			}

			groups, err := r.store.FindGroupsByName(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("find group %q: %w", name, err)
			}

			switch {
			case len(groups) == 0:
				logger.Errorf("unable to provision user, missing group %q", name)
				return nil, newError(KindMissingGroupConfiguration, provider.ID(), 0, fmt.Sprintf("group %q", name), nil)
			case len(groups) > 1:
				sortGroups(groups)
				warning := newError(KindAmbiguousGroupName, provider.ID(), 0,
					fmt.Sprintf("%d groups named %q, using %s", len(groups), name, groups[0].ID), nil)
				logger.Warn(warning.Error())
				result.Warnings = append(result.Warnings, warning)
				if r.metrics != nil {
					r.metrics.AmbiguousGroupsTotal.WithLabelValues(provider.ID()).Inc()
				}
			}

			group := groups[0]
			byName[name] = group
			if _, dup := seen[group.ID]; dup {
				continue
			}
			seen[group.ID] = struct{}{}
			result.Groups = append(result.Groups, group)
		}
	}

	return result, nil
}

// sortGroups orders groups by creation time, then ID
func sortGroups(groups []auth.Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		if !groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].CreatedAt.Before(groups[j].CreatedAt)
		}
		return groups[i].ID < groups[j].ID
	})
}
