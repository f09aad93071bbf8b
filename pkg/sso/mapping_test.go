package sso

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/federate/pkg/observability"
)

const scenarioProfile = `{"email":"a@x.com","id":"99","name":{"first":"A","last":"B"}}`

func profileFrom(t *testing.T, raw string) *Profile {
	t.Helper()
	return &Profile{Raw: []byte(raw), Document: decodeFixture(t, raw)}
}

func TestMapIdentity(t *testing.T) {
	cfg := genericConfig("corp")
	cfg.ApplyDefaults()

	identity, err := MapIdentity(&cfg, profileFrom(t, scenarioProfile), nil, observability.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, &FederatedIdentity{
		Username:  "a@x.com",
		Email:     "a@x.com",
		SourceID:  "99",
		Firstname: "A",
		Lastname:  "B",
	}, identity)
}

func TestMapIdentity_GitHubNameSplit(t *testing.T) {
	cfg := GitHubPreset("github", "cid", "secret")
	raw := `{"login":"octo","id":583231,"name":"Mona Lisa Octocat","email":"octo@github.com","avatar_url":"https://avatars/u/583231"}`

	identity, err := MapIdentity(&cfg, profileFrom(t, raw), nil, observability.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "octo@github.com", identity.Username)
	assert.Equal(t, "583231", identity.SourceID)
	assert.Equal(t, "Mona", identity.Firstname)
	assert.Equal(t, "Lisa Octocat", identity.Lastname)
	assert.Equal(t, "https://avatars/u/583231", identity.Picture)
}

func TestMapIdentity_ExplicitNamesWinOverSplit(t *testing.T) {
	cfg := genericConfig("corp")
	cfg.UserMapping.Name = "$.display"
	cfg.ApplyDefaults()

	identity, err := MapIdentity(&cfg, profileFrom(t, `{"email":"a@x.com","display":"X Y","name":{"first":"A"}}`), nil, observability.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "A", identity.Firstname)
	assert.Empty(t, identity.Lastname)
}

func TestMapIdentity_MissingEmail(t *testing.T) {
	tests := []struct {
		name    string
		mapping string
		profile string
	}{
		{"path absent", "$.email", `{"id":"99"}`},
		{"null value", "$.email", `{"email":null}`},
		{"blank value", "$.email", `{"email":"  "}`},
		{"not a scalar", "$.email", `{"email":{"primary":"a@x.com"}}`},
		{"unmapped", "", `{"email":"a@x.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := genericConfig("corp")
			cfg.UserMapping.Email = tt.mapping
			cfg.ApplyDefaults()

			_, err := MapIdentity(&cfg, profileFrom(t, tt.profile), nil, observability.NewNopLogger())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingEmailMapping)
		})
	}
}

func TestMapIdentity_OptionalMissesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	cfg := genericConfig("corp")
	cfg.UserMapping.Picture = "$.photo.url"
	cfg.ApplyDefaults()

	identity, err := MapIdentity(&cfg, profileFrom(t, `{"email":"a@x.com"}`), metrics, logger)
	require.NoError(t, err)
	assert.Empty(t, identity.SourceID)
	assert.Empty(t, identity.Picture)

	out := buf.String()
	assert.Contains(t, out, "$.photo.url")
	assert.Contains(t, out, "corp")
	assert.Contains(t, out, `a@x.com`)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ExtractionMissesTotal.WithLabelValues("corp", "picture")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ExtractionMissesTotal.WithLabelValues("corp", "id")))
}
