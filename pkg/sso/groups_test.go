package sso

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/federate/pkg/observability"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func providerWithMappings(t *testing.T, mappings ...GroupMapping) *Provider {
	t.Helper()
	cfg := genericConfig("corp")
	cfg.GroupMappings = mappings
	registry, err := NewRegistry([]ProviderConfig{cfg})
	require.NoError(t, err)
	p, _ := registry.Get("corp")
	return p
}

func TestGroupResolver_Resolve(t *testing.T) {
	store := newMemoryStore()
	store.addGroup("g-admins", "admins", testTime)
	store.addGroup("g-dev", "dev", testTime)
	store.addGroup("g-ops", "ops", testTime)

	provider := providerWithMappings(t,
		GroupMapping{Condition: `$.email == "a@x.com"`, Groups: []string{"admins", "dev"}},
		GroupMapping{Condition: `"ops" in $.groups`, Groups: []string{"ops", "dev"}},
		GroupMapping{Condition: `$.email == "nobody"`, Groups: []string{"missing-but-unmatched"}},
	)
	doc := decodeFixture(t, `{"email":"a@x.com","groups":["ops"]}`)

	resolver := NewGroupResolver(store, nil, observability.NewNopLogger())
	res, err := resolver.Resolve(context.Background(), provider, "a@x.com", doc)
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Groups))
	for _, g := range res.Groups {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"g-admins", "g-dev", "g-ops"}, ids)
	assert.Empty(t, res.Warnings)
}

func TestGroupResolver_MissingGroup(t *testing.T) {
	store := newMemoryStore()
	store.addGroup("g-dev", "dev", testTime)

	provider := providerWithMappings(t,
		GroupMapping{Condition: `true`, Groups: []string{"dev", "admins"}},
	)

	resolver := NewGroupResolver(store, nil, observability.NewNopLogger())
	_, err := resolver.Resolve(context.Background(), provider, "a@x.com", decodeFixture(t, `{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingGroupConfiguration)
	assert.Contains(t, err.Error(), `"admins"`)
}

func TestGroupResolver_AmbiguousNameIsDeterministic(t *testing.T) {
	store := newMemoryStore()
	store.addGroup("g-newer", "admins", testTime.Add(time.Hour))
	store.addGroup("g-b", "admins", testTime)
	store.addGroup("g-a", "admins", testTime)

	provider := providerWithMappings(t, GroupMapping{Condition: `true`, Groups: []string{"admins"}})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	resolver := NewGroupResolver(store, metrics, observability.NewNopLogger())

	for i := 0; i < 3; i++ {
		res, err := resolver.Resolve(context.Background(), provider, "a@x.com", decodeFixture(t, `{}`))
		require.NoError(t, err)
		require.Len(t, res.Groups, 1)
		assert.Equal(t, "g-a", res.Groups[0].ID)
		require.Len(t, res.Warnings, 1)
		assert.ErrorIs(t, res.Warnings[0], ErrAmbiguousGroupName)
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.AmbiguousGroupsTotal.WithLabelValues("corp")))
}

func TestGroupResolver_RepeatedNameLookedUpOnce(t *testing.T) {
	store := newMemoryStore()
	store.addGroup("g-b", "admins", testTime.Add(time.Minute))
	store.addGroup("g-a", "admins", testTime)

	provider := providerWithMappings(t,
		GroupMapping{Condition: `true`, Groups: []string{"admins"}},
		GroupMapping{Condition: `$.email == "a@x.com"`, Groups: []string{"admins"}},
	)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	resolver := NewGroupResolver(store, metrics, observability.NewNopLogger())

	res, err := resolver.Resolve(context.Background(), provider, "a@x.com", decodeFixture(t, `{"email":"a@x.com"}`))
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "g-a", res.Groups[0].ID)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, store.findGroupCalls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AmbiguousGroupsTotal.WithLabelValues("corp")))
}

func TestGroupResolver_RuntimeErrorIsNoMatch(t *testing.T) {
	store := newMemoryStore()
	provider := providerWithMappings(t, GroupMapping{Condition: `$.email > 5`, Groups: []string{"missing"}})

	resolver := NewGroupResolver(store, nil, observability.NewNopLogger())
	res, err := resolver.Resolve(context.Background(), provider, "a@x.com", decodeFixture(t, `{"email":"a@x.com"}`))
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	assert.Equal(t, 0, store.findGroupCalls)
}

func TestSortGroups(t *testing.T) {
	groups := []struct {
		id string
		at time.Time
	}{
		{"c", testTime.Add(time.Minute)},
		{"b", testTime},
		{"a", testTime},
	}
	store := newMemoryStore()
	for _, g := range groups {
		store.addGroup(g.id, "x", g.at)
	}
	sortGroups(store.groups)
	assert.Equal(t, "a", store.groups[0].ID)
	assert.Equal(t, "b", store.groups[1].ID)
	assert.Equal(t, "c", store.groups[2].ID)
}
