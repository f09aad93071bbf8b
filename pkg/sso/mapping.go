package sso

import (
	"strings"

	"github.com/platinummonkey/federate/pkg/observability"
)

const maxLoggedDocumentBytes = 512

// identityMapper applies a provider's user mapping to one profile
type identityMapper struct {
	provider *ProviderConfig
	profile  *Profile
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// MapIdentity resolves the federated identity of a profile. The email
// mapping is mandatory and becomes the username; every other field is left
// empty when unmapped or missing.
func MapIdentity(provider *ProviderConfig, profile *Profile, metrics *observability.Metrics, logger *observability.Logger) (*FederatedIdentity, error) {
	m := &identityMapper{
		provider: provider,
		profile:  profile,
		metrics:  metrics,
		logger:   logger,
	}
	mapping := provider.UserMapping

	if mapping.Email == "" {
		logger.Errorf("provider %s has no email mapping", provider.ID)
		return nil, newError(KindMissingEmailMapping, provider.ID, 0, "email is not mapped", nil)
	}
	email, ok := m.field("email", mapping.Email)
	if !ok || strings.TrimSpace(email) == "" {
		return nil, newError(KindMissingEmailMapping, provider.ID, 0, "", nil)
	}

	identity := &FederatedIdentity{
		Username: email,
		Email:    email,
	}
	identity.SourceID, _ = m.field("id", mapping.ID)
	identity.Firstname, _ = m.field("firstname", mapping.Firstname)
	identity.Lastname, _ = m.field("lastname", mapping.Lastname)
	identity.Picture, _ = m.field("picture", mapping.Picture)

	if mapping.Firstname == "" && mapping.Lastname == "" && mapping.Name != "" {
		if name, ok := m.field("name", mapping.Name); ok {
			identity.Firstname, identity.Lastname = SplitName(name)
		}
	}

	return identity, nil
}

// field extracts one mapped field. An unmapped field is silent; a mapped
// field that cannot be read is logged with the expression and the document.
func (m *identityMapper) field(name, expression string) (string, bool) {
	if expression == "" {
		return "", false
	}

	value, ok := Extract(m.profile.Document, expression)
	if ok {
		return value, true
	}

	m.logger.WithFields(map[string]interface{}{
		"provider":   m.provider.ID,
		"field":      name,
		"expression": expression,
		"document":   truncate(string(m.profile.Raw), maxLoggedDocumentBytes),
	}).Warnf("using path %q, no field is located in the profile", expression)
	if m.metrics != nil {
		m.metrics.ExtractionMissesTotal.WithLabelValues(m.provider.ID, name).Inc()
	}
	return "", false
}

// SplitName splits a display name into first name and the remaining last name
func SplitName(name string) (firstname, lastname string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
