package sso

import (
	"fmt"
	"sort"
)

// Provider is a validated provider configuration with its compiled group
// mapping conditions
type Provider struct {
	Config     ProviderConfig
	conditions []*Condition
}

// ID returns the registry key of the provider
func (p *Provider) ID() string {
	return p.Config.ID
}

// Registry is the process-wide, read-only set of identity providers
type Registry struct {
	providers map[string]*Provider
	ids       []string
}

// NewRegistry validates every provider and compiles its group mapping
// conditions. Any malformed provider fails the whole registry.
func NewRegistry(configs []ProviderConfig) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*Provider, len(configs)),
	}

	for _, cfg := range configs {
		cfg.GroupMappings = append([]GroupMapping(nil), cfg.GroupMappings...)
		cfg.Scopes = append([]string(nil), cfg.Scopes...)
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.providers[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate provider id %q", cfg.ID)
		}

		provider := &Provider{
			Config:     cfg,
			conditions: make([]*Condition, len(cfg.GroupMappings)),
		}
		for i, mapping := range cfg.GroupMappings {
			condition, err := CompileCondition(mapping.Condition)
			if err != nil {
				return nil, fmt.Errorf("provider %s: group_mappings[%d]: %w", cfg.ID, i, err)
			}
			provider.conditions[i] = condition
		}

		r.providers[cfg.ID] = provider
		r.ids = append(r.ids, cfg.ID)
	}

	sort.Strings(r.ids)
	return r, nil
}

// Get returns the provider registered under id
func (r *Registry) Get(id string) (*Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// List returns all providers ordered by id
func (r *Registry) List() []*Provider {
	out := make([]*Provider, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.providers[id])
	}
	return out
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	return len(r.ids)
}
