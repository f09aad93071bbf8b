package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/idp/memory"
	"github.com/platinummonkey/federate/pkg/sso"
)

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ProvidersFile is the document read from FEDERATE_PROVIDERS_FILE
type ProvidersFile struct {
	Providers []sso.ProviderConfig `yaml:"providers"`
	Users     []memory.User        `yaml:"users"`
	Bootstrap Bootstrap            `yaml:"bootstrap"`
}

// Bootstrap lists groups and roles seeded at startup. Existing rows are kept.
type Bootstrap struct {
	Groups []string        `yaml:"groups"`
	Roles  []BootstrapRole `yaml:"roles"`
}

// BootstrapRole is one role to upsert at startup
type BootstrapRole struct {
	Name        string         `yaml:"name"`
	Scope       auth.RoleScope `yaml:"scope"`
	Description string         `yaml:"description"`
	Default     bool           `yaml:"default"`
}

// Role converts the entry to the stored entity
func (r BootstrapRole) Role() *auth.Role {
	return &auth.Role{
		Name:        r.Name,
		Scope:       auth.RoleScope(strings.ToUpper(string(r.Scope))),
		Description: r.Description,
		Default:     r.Default,
	}
}

// LoadProviders reads and validates the providers file at path.
// ${VAR} references are expanded from the environment before parsing so
// client secrets can stay out of the file.
func LoadProviders(path string) (*ProvidersFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}
	return ParseProviders(raw)
}

// ParseProviders decodes a providers document. Unknown keys are rejected.
func ParseProviders(raw []byte) (*ProvidersFile, error) {
	var file ProvidersFile
	decoder := yaml.NewDecoder(bytes.NewReader(expandEnv(raw)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks the bootstrap section. Provider validation happens when
// the registry is built.
func (f *ProvidersFile) Validate() error {
	if len(f.Providers) == 0 {
		return fmt.Errorf("providers file declares no providers")
	}

	for i, name := range f.Bootstrap.Groups {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("bootstrap.groups[%d]: name is required", i)
		}
	}

	defaults := make(map[auth.RoleScope]string)
	for i, entry := range f.Bootstrap.Roles {
		role := entry.Role()
		if role.Name == "" {
			return fmt.Errorf("bootstrap.roles[%d]: name is required", i)
		}
		switch role.Scope {
		case auth.RoleScopeAPI, auth.RoleScopeApplication:
		default:
			return fmt.Errorf("bootstrap.roles[%d]: unsupported scope %q", i, entry.Scope)
		}
		if role.Default {
			if other, ok := defaults[role.Scope]; ok {
				return fmt.Errorf("bootstrap.roles[%d]: scope %s already has default role %s", i, role.Scope, other)
			}
			defaults[role.Scope] = role.Name
		}
	}
	return nil
}

// expandEnv replaces ${VAR} references only. Bare $ is left alone since
// mapping expressions start with it.
func expandEnv(raw []byte) []byte {
	return envReference.ReplaceAllFunc(raw, func(ref []byte) []byte {
		name := envReference.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}
