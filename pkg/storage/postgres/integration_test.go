//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/observability"
	"github.com/platinummonkey/federate/pkg/session"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("federate_test"),
		tcpostgres.WithUsername("federate"),
		tcpostgres.WithPassword("federate_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, RunMigrations(ctx, db, observability.NewNopLogger()))
	// Applying twice is a no-op
	require.NoError(t, RunMigrations(ctx, db, observability.NewNopLogger()))
	return db
}

func TestIntegration_Provisioning(t *testing.T) {
	db := setupPostgres(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.FindUserByUsername(ctx, "a@x.com")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	// Concurrent first logins create exactly one user
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.CreateUser(ctx, &auth.NewExternalUser{
				Username: "a@x.com", Email: "a@x.com", Firstname: "A", Source: "corp", SourceID: "99",
			})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)

	picture := "https://pics/1"
	user, err := store.UpdateUser(ctx, &auth.UpdateUser{Username: "a@x.com", Picture: &picture})
	require.NoError(t, err)
	assert.Equal(t, picture, user.Picture)
	assert.Equal(t, "99", user.SourceID)

	group, _, err := store.EnsureGroup(ctx, "admins")
	require.NoError(t, err)
	require.NoError(t, store.UpsertRole(ctx, &auth.Role{Name: "USER", Scope: auth.RoleScopeAPI, Default: true}))
	assert.Error(t, store.UpsertRole(ctx, &auth.Role{Name: "OWNER", Scope: auth.RoleScopeAPI, Default: true}))

	role, err := store.FindDefaultRoleForScope(ctx, auth.RoleScopeAPI)
	require.NoError(t, err)
	assert.Equal(t, "USER", role.Name)
	_, err = store.FindDefaultRoleForScope(ctx, auth.RoleScopeApplication)
	assert.ErrorIs(t, err, auth.ErrRoleNotFound)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.AddOrUpdateMembership(ctx, &auth.Membership{
			ReferenceType: auth.MembershipReferenceGroup,
			ReferenceID:   group.ID,
			Username:      "a@x.com",
			Scope:         auth.RoleScopeAPI,
			RoleName:      "USER",
		}))
	}
	memberships, err := store.ListMemberships(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Len(t, memberships, 1)
}

func TestIntegration_Sessions(t *testing.T) {
	db := setupPostgres(t)
	store := NewSessionStore(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, &session.Session{ID: "live", Username: "a@x.com", Provider: "corp", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.Create(ctx, &session.Session{ID: "old", Username: "a@x.com", Provider: "corp", CreatedAt: now, ExpiresAt: now.Add(-time.Hour)}))

	got, err := store.Get(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Username)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, session.ErrNotFound)

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
