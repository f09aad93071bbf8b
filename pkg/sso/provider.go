package sso

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	// DefaultAccessTokenField is the token response field holding the access token
	DefaultAccessTokenField = "access_token"
	// DefaultAuthorizationHeader is the profile request Authorization header template
	DefaultAuthorizationHeader = "Bearer %s"

	githubUserInfoURL         = "https://api.github.com/user"
	githubAuthorizationHeader = "token %s"
)

// GitHubPreset returns the fixed-schema GitHub provider. GitHub only exposes
// a display name, so first and last name come from splitting it.
func GitHubPreset(id, clientID, clientSecret string) ProviderConfig {
	cfg := ProviderConfig{
		ID:           id,
		Type:         ProviderTypeGitHub,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields from the provider type's preset and the
// generic defaults. Explicit values always win.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Type == "" {
		c.Type = ProviderTypeOAuth2
	}

	if c.Type == ProviderTypeGitHub {
		setDefault(&c.AuthorizationEndpoint, github.Endpoint.AuthURL)
		setDefault(&c.TokenEndpoint, github.Endpoint.TokenURL)
		setDefault(&c.UserInfoEndpoint, githubUserInfoURL)
		setDefault(&c.AuthorizationHeader, githubAuthorizationHeader)
		setDefault(&c.UserMapping.Email, "$.email")
		setDefault(&c.UserMapping.ID, "$.id")
		setDefault(&c.UserMapping.Name, "$.name")
		setDefault(&c.UserMapping.Picture, "$.avatar_url")
		if len(c.Scopes) == 0 {
			c.Scopes = []string{"user:email"}
		}
	}

	if c.Type == ProviderTypeOIDC && len(c.Scopes) == 0 {
		c.Scopes = []string{"openid", "profile", "email"}
	}

	setDefault(&c.AccessTokenField, DefaultAccessTokenField)
	setDefault(&c.AuthorizationHeader, DefaultAuthorizationHeader)

	for i := range c.GroupMappings {
		c.GroupMappings[i].Groups = dedupe(c.GroupMappings[i].Groups)
	}
}

// Validate checks the configuration for defects that would make every login fail
func (c *ProviderConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("provider id is required")
	}

	switch c.Type {
	case ProviderTypeGitHub, ProviderTypeOAuth2, ProviderTypeOIDC:
	default:
		return fmt.Errorf("provider %s: unsupported type %q", c.ID, c.Type)
	}

	if c.ClientSecret == "" {
		return fmt.Errorf("provider %s: client_secret is required", c.ID)
	}
	if err := validateURL(c.TokenEndpoint); err != nil {
		return fmt.Errorf("provider %s: token_endpoint: %w", c.ID, err)
	}
	if err := validateURL(c.UserInfoEndpoint); err != nil {
		return fmt.Errorf("provider %s: userinfo_endpoint: %w", c.ID, err)
	}
	if c.AuthorizationEndpoint != "" {
		if err := validateURL(c.AuthorizationEndpoint); err != nil {
			return fmt.Errorf("provider %s: authorization_endpoint: %w", c.ID, err)
		}
	}
	if strings.Count(c.AuthorizationHeader, "%s") != 1 {
		return fmt.Errorf("provider %s: authorization_header must contain exactly one %%s", c.ID)
	}

	for field, expression := range c.UserMapping.expressions() {
		if expression == "" {
			continue
		}
		if err := ValidatePath(expression); err != nil {
			return fmt.Errorf("provider %s: user_mapping.%s: %w", c.ID, field, err)
		}
	}

	for i, mapping := range c.GroupMappings {
		if strings.TrimSpace(mapping.Condition) == "" {
			return fmt.Errorf("provider %s: group_mappings[%d]: condition is required", c.ID, i)
		}
		if len(mapping.Groups) == 0 {
			return fmt.Errorf("provider %s: group_mappings[%d]: at least one group is required", c.ID, i)
		}
	}

	return nil
}

// OAuth2Config returns the x/oauth2 view of the provider used to build
// authorization redirects
func (c *ProviderConfig) OAuth2Config(clientID, redirectURI string) *oauth2.Config {
	if clientID == "" {
		clientID = c.ClientID
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizationEndpoint,
			TokenURL:  c.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      c.Scopes,
	}
}

// AuthCodeURL returns the provider's authorization URL for the given state
func (c *ProviderConfig) AuthCodeURL(redirectURI, state string) (string, error) {
	if c.AuthorizationEndpoint == "" {
		return "", fmt.Errorf("provider %s has no authorization endpoint", c.ID)
	}
	return c.OAuth2Config("", redirectURI).AuthCodeURL(state), nil
}

func (m UserMapping) expressions() map[string]string {
	return map[string]string{
		"email":     m.Email,
		"id":        m.ID,
		"firstname": m.Firstname,
		"lastname":  m.Lastname,
		"name":      m.Name,
		"picture":   m.Picture,
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
