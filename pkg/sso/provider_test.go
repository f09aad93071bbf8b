package sso

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genericConfig(id string) ProviderConfig {
	return ProviderConfig{
		ID:                    id,
		Type:                  ProviderTypeOAuth2,
		ClientID:              "client-" + id,
		ClientSecret:          "secret",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         "https://idp.example.com/token",
		UserInfoEndpoint:      "https://idp.example.com/userinfo",
		UserMapping: UserMapping{
			Email:     "$.email",
			ID:        "$.id",
			Firstname: "$.name.first",
			Lastname:  "$.name.last",
		},
	}
}

func TestGitHubPreset(t *testing.T) {
	cfg := GitHubPreset("github", "cid", "secret")

	assert.Equal(t, ProviderTypeGitHub, cfg.Type)
	assert.Equal(t, "https://github.com/login/oauth/authorize", cfg.AuthorizationEndpoint)
	assert.Equal(t, "https://github.com/login/oauth/access_token", cfg.TokenEndpoint)
	assert.Equal(t, "https://api.github.com/user", cfg.UserInfoEndpoint)
	assert.Equal(t, "token %s", cfg.AuthorizationHeader)
	assert.Equal(t, "access_token", cfg.AccessTokenField)
	assert.Equal(t, "$.email", cfg.UserMapping.Email)
	assert.Equal(t, "$.name", cfg.UserMapping.Name)
	assert.Equal(t, []string{"user:email"}, cfg.Scopes)
	assert.NoError(t, cfg.Validate())
}

func TestApplyDefaults(t *testing.T) {
	t.Run("generic defaults", func(t *testing.T) {
		cfg := ProviderConfig{ID: "x"}
		cfg.ApplyDefaults()
		assert.Equal(t, ProviderTypeOAuth2, cfg.Type)
		assert.Equal(t, DefaultAccessTokenField, cfg.AccessTokenField)
		assert.Equal(t, DefaultAuthorizationHeader, cfg.AuthorizationHeader)
	})

	t.Run("explicit values win over preset", func(t *testing.T) {
		cfg := ProviderConfig{
			ID:                  "gh",
			Type:                ProviderTypeGitHub,
			AuthorizationHeader: "Bearer %s",
			UserMapping:         UserMapping{Email: "$.login"},
		}
		cfg.ApplyDefaults()
		assert.Equal(t, "Bearer %s", cfg.AuthorizationHeader)
		assert.Equal(t, "$.login", cfg.UserMapping.Email)
	})

	t.Run("oidc scopes", func(t *testing.T) {
		cfg := ProviderConfig{ID: "o", Type: ProviderTypeOIDC}
		cfg.ApplyDefaults()
		assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	})

	t.Run("group names are a set", func(t *testing.T) {
		cfg := ProviderConfig{
			ID:            "x",
			GroupMappings: []GroupMapping{{Condition: "true", Groups: []string{"a", " b ", "a", "", "b"}}},
		}
		cfg.ApplyDefaults()
		assert.Equal(t, []string{"a", "b"}, cfg.GroupMappings[0].Groups)
	})
}

func TestProviderConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ProviderConfig)
		errorMsg string
	}{
		{"valid", func(c *ProviderConfig) {}, ""},
		{"missing id", func(c *ProviderConfig) { c.ID = "" }, "provider id is required"},
		{"bad type", func(c *ProviderConfig) { c.Type = "saml" }, "unsupported type"},
		{"missing secret", func(c *ProviderConfig) { c.ClientSecret = "" }, "client_secret is required"},
		{"missing token endpoint", func(c *ProviderConfig) { c.TokenEndpoint = "" }, "token_endpoint"},
		{"bad userinfo scheme", func(c *ProviderConfig) { c.UserInfoEndpoint = "ftp://idp/userinfo" }, "userinfo_endpoint"},
		{"bad authorize url", func(c *ProviderConfig) { c.AuthorizationEndpoint = "https://" }, "authorization_endpoint"},
		{"header without placeholder", func(c *ProviderConfig) { c.AuthorizationHeader = "Bearer" }, "authorization_header"},
		{"malformed mapping", func(c *ProviderConfig) { c.UserMapping.Picture = "$..pic" }, "user_mapping.picture"},
		{"empty condition", func(c *ProviderConfig) {
			c.GroupMappings = []GroupMapping{{Condition: " ", Groups: []string{"a"}}}
		}, "condition is required"},
		{"no groups", func(c *ProviderConfig) {
			c.GroupMappings = []GroupMapping{{Condition: "true"}}
		}, "at least one group"},
		{"email unmapped is accepted", func(c *ProviderConfig) { c.UserMapping.Email = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := genericConfig("corp")
			tt.mutate(&cfg)
			cfg.ApplyDefaults()

			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestProviderConfig_AuthCodeURL(t *testing.T) {
	cfg := genericConfig("corp")
	cfg.Scopes = []string{"openid", "email"}
	cfg.ApplyDefaults()

	raw, err := cfg.AuthCodeURL("https://app.example.com/cb", "state-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "client-corp", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/cb", q.Get("redirect_uri"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email", q.Get("scope"))

	cfg.AuthorizationEndpoint = ""
	_, err = cfg.AuthCodeURL("https://app.example.com/cb", "s")
	assert.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	corp := genericConfig("corp")
	corp.GroupMappings = []GroupMapping{{Condition: `$.email endsWith "@x.com"`, Groups: []string{"staff"}}}

	registry, err := NewRegistry([]ProviderConfig{corp, GitHubPreset("github", "cid", "secret")})
	require.NoError(t, err)

	assert.Equal(t, 2, registry.Len())
	list := registry.List()
	require.Len(t, list, 2)
	assert.Equal(t, "corp", list[0].ID())
	assert.Equal(t, "github", list[1].ID())

	p, ok := registry.Get("corp")
	require.True(t, ok)
	assert.Len(t, p.conditions, 1)
	assert.Equal(t, DefaultAuthorizationHeader, p.Config.AuthorizationHeader)

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestNewRegistry_Errors(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		_, err := NewRegistry([]ProviderConfig{genericConfig("a"), genericConfig("a")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate provider id")
	})

	t.Run("malformed condition", func(t *testing.T) {
		cfg := genericConfig("a")
		cfg.GroupMappings = []GroupMapping{{Condition: `$.email ==`, Groups: []string{"g"}}}
		_, err := NewRegistry([]ProviderConfig{cfg})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "group_mappings[0]")
	})

	t.Run("invalid provider", func(t *testing.T) {
		cfg := genericConfig("a")
		cfg.ClientSecret = ""
		_, err := NewRegistry([]ProviderConfig{cfg})
		assert.Error(t, err)
	})
}

func TestNewRegistry_DoesNotAliasInput(t *testing.T) {
	cfg := genericConfig("a")
	cfg.GroupMappings = []GroupMapping{{Condition: "true", Groups: []string{"g", "g"}}}
	input := []ProviderConfig{cfg}

	registry, err := NewRegistry(input)
	require.NoError(t, err)

	input[0].GroupMappings[0].Condition = "false"
	p, _ := registry.Get("a")
	assert.Equal(t, "true", p.Config.GroupMappings[0].Condition)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, first, last string
	}{
		{"", "", ""},
		{"Ada", "Ada", ""},
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"  Jean  Claude Van Damme ", "Jean", "Claude Van Damme"},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.name)
		assert.Equal(t, tt.first, first, tt.name)
		assert.Equal(t, tt.last, last, tt.name)
	}
}
