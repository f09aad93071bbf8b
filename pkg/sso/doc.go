// Package sso implements federated login against external identity providers
// with just-in-time user provisioning.
//
// # Overview
//
// A login runs as a linear pipeline:
//
//	Start -> TokenExchanged -> ProfileFetched -> MappingResolved
//	      -> UserCreated | UserRefreshed -> GroupsSynchronized -> SessionBound -> Done
//
// Any step may move to Failed, which is terminal. Nothing is rolled back on
// failure, except that group and default-role configuration is resolved before
// a new user is created so that configuration defects leave no trace.
//
// # Providers
//
// Providers are described by ProviderConfig and loaded once into a Registry:
//
//	registry, err := sso.NewRegistry([]sso.ProviderConfig{
//		sso.GitHubPreset("github", clientID, clientSecret),
//		{
//			ID:               "corp",
//			Type:             sso.ProviderTypeOAuth2,
//			TokenEndpoint:    "https://idp.example.com/token",
//			UserInfoEndpoint: "https://idp.example.com/userinfo",
//			ClientSecret:     secret,
//			UserMapping: sso.UserMapping{
//				Email:     "$.email",
//				ID:        "$.sub",
//				Firstname: "$.name.first",
//				Lastname:  "$.name.last",
//			},
//			GroupMappings: []sso.GroupMapping{
//				{Condition: `"admins" in $.groups`, Groups: []string{"admins"}},
//			},
//		},
//	})
//
// User fields are read with path expressions ($.a.b, $.list[0], $['key']).
// Group mapping conditions are boolean expr-lang expressions in which path
// literals are available directly, e.g. `$.email endsWith "@example.com"`.
//
// # Related Packages
//
//   - pkg/auth: local users, groups, roles and session tokens
//   - pkg/session: session stores
//   - pkg/storage/postgres: persistence of users, groups, roles and memberships
package sso
