package sso

import (
	"time"

	"github.com/platinummonkey/federate/pkg/auth"
)

// ProviderType selects how a provider's endpoints and mappings are obtained
type ProviderType string

const (
	// ProviderTypeGitHub is the fixed-schema GitHub provider
	ProviderTypeGitHub ProviderType = "github"
	// ProviderTypeOAuth2 is a generic provider described entirely by configuration
	ProviderTypeOAuth2 ProviderType = "oauth2"
	// ProviderTypeOIDC is a generic provider whose endpoints come from discovery
	ProviderTypeOIDC ProviderType = "oidc"
)

// ProviderConfig describes one identity provider. It is immutable once the
// registry is built.
type ProviderConfig struct {
	ID                    string         `yaml:"id" json:"id"`
	Type                  ProviderType   `yaml:"type" json:"type"`
	ClientID              string         `yaml:"client_id" json:"client_id,omitempty"`
	ClientSecret          string         `yaml:"client_secret" json:"-"`
	AuthorizationEndpoint string         `yaml:"authorization_endpoint" json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string         `yaml:"token_endpoint" json:"-"`
	UserInfoEndpoint      string         `yaml:"userinfo_endpoint" json:"-"`
	AccessTokenField      string         `yaml:"access_token_field" json:"-"`
	AuthorizationHeader   string         `yaml:"authorization_header" json:"-"` // printf template, e.g. "Bearer %s"
	Scopes                []string       `yaml:"scopes" json:"scopes,omitempty"`
	IssuerURL             string         `yaml:"issuer_url" json:"-"`
	UserMapping           UserMapping    `yaml:"user_mapping" json:"-"`
	GroupMappings         []GroupMapping `yaml:"group_mappings" json:"-"`
}

// UserMapping holds the extraction expression of each local user field.
// An empty expression means the field is not mapped.
type UserMapping struct {
	Email     string `yaml:"email"`
	ID        string `yaml:"id"`
	Firstname string `yaml:"firstname"`
	Lastname  string `yaml:"lastname"`
	Name      string `yaml:"name"` // Full name, split when Firstname and Lastname are unmapped
	Picture   string `yaml:"picture"`
}

// GroupMapping grants Groups to users whose profile satisfies Condition
type GroupMapping struct {
	Condition string   `yaml:"condition"`
	Groups    []string `yaml:"groups"`
}

// Profile is the user document returned by a provider's user info endpoint
type Profile struct {
	Raw      []byte
	Document interface{}
}

// FederatedIdentity is the identity resolved from one profile. It lives
// for the duration of a single login.
type FederatedIdentity struct {
	Username  string
	SourceID  string
	Firstname string
	Lastname  string
	Email     string
	Picture   string
}

// LoginRequest is the body of POST /auth/{provider}
type LoginRequest struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
}

// SessionToken is handed back to the client after a successful login
type SessionToken struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginResult describes a completed login
type LoginResult struct {
	Session     *SessionToken
	Principal   *auth.AuthContext
	User        *auth.User
	Created     bool
	Groups      []auth.Group
	Memberships int
	Warnings    []error
	State       PipelineState
}
