package main

import (
	"context"
	"fmt"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/config"
	"github.com/platinummonkey/federate/pkg/observability"
)

type seedStore interface {
	EnsureGroup(ctx context.Context, name string) (*auth.Group, bool, error)
	UpsertRole(ctx context.Context, role *auth.Role) error
}

// seed creates the bootstrap groups and roles that do not exist yet
func seed(ctx context.Context, store seedStore, bootstrap config.Bootstrap, logger *observability.Logger) error {
	for _, name := range bootstrap.Groups {
		group, created, err := store.EnsureGroup(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to seed group %s: %w", name, err)
		}
		if created {
			logger.WithField("group", group.Name).WithField("group_id", group.ID).Info("group created")
		}
	}

	for _, entry := range bootstrap.Roles {
		role := entry.Role()
		if err := store.UpsertRole(ctx, role); err != nil {
			return fmt.Errorf("failed to seed role %s/%s: %w", role.Scope, role.Name, err)
		}
	}
	return nil
}
