package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverEndpoints fills the endpoints of OIDC providers from their issuer's
// discovery document. Endpoints set explicitly in configuration are kept.
// Providers of other types are returned unchanged.
func DiscoverEndpoints(ctx context.Context, configs []ProviderConfig, httpClient *http.Client) ([]ProviderConfig, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}

	out := make([]ProviderConfig, len(configs))
	for i, cfg := range configs {
		out[i] = cfg
		if cfg.Type != ProviderTypeOIDC {
			continue
		}
		if cfg.IssuerURL == "" {
			return nil, fmt.Errorf("provider %s: issuer_url is required for oidc providers", cfg.ID)
		}

		provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("provider %s: failed to discover OIDC provider: %w", cfg.ID, err)
		}

		endpoint := provider.Endpoint()
		setDefault(&out[i].AuthorizationEndpoint, endpoint.AuthURL)
		setDefault(&out[i].TokenEndpoint, endpoint.TokenURL)
		setDefault(&out[i].UserInfoEndpoint, provider.UserInfoEndpoint())
	}

	return out, nil
}
