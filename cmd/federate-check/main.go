// Command federate-check validates a providers file without starting the
// service: provider definitions, mapping expressions, group conditions,
// configured users and bootstrap entries.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/federate/pkg/config"
	"github.com/platinummonkey/federate/pkg/idp/memory"
	"github.com/platinummonkey/federate/pkg/sso"
)

func main() {
	path := flag.String("file", os.Getenv("FEDERATE_PROVIDERS_FILE"), "Providers file to validate")
	strict := flag.Bool("strict", false, "Treat warnings as errors")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel, os.Stderr)
	os.Exit(check(*path, *strict, logger))
}

func setupLogger(logLevel string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// check returns the process exit code: 0 valid, 1 invalid, 2 warnings in strict mode
func check(path string, strict bool, logger *logrus.Logger) int {
	if path == "" {
		logger.Error("no providers file given, use -file or FEDERATE_PROVIDERS_FILE")
		return 1
	}

	file, err := config.LoadProviders(path)
	if err != nil {
		logger.WithError(err).Error("providers file is invalid")
		return 1
	}

	registry, err := sso.NewRegistry(file.Providers)
	if err != nil {
		logger.WithError(err).Error("provider configuration is invalid")
		return 1
	}

	if _, err := memory.NewLookup(file.Users); err != nil {
		logger.WithError(err).Error("users configuration is invalid")
		return 1
	}

	warnings := 0
	for _, provider := range registry.List() {
		entry := logger.WithFields(logrus.Fields{
			"provider": provider.ID(),
			"type":     provider.Config.Type,
		})
		for _, warning := range providerWarnings(provider) {
			entry.Warn(warning)
			warnings++
		}
		entry.WithField("group_mappings", len(provider.Config.GroupMappings)).Info("provider ok")
	}

	if !hasDefaultRoles(file.Bootstrap) {
		logger.Warn("bootstrap does not declare a default role for every scope; group logins fail until one exists")
		warnings++
	}

	logger.WithFields(logrus.Fields{
		"providers": registry.Len(),
		"users":     len(file.Users),
		"warnings":  warnings,
	}).Info("providers file checked")

	if strict && warnings > 0 {
		return 2
	}
	return 0
}

func providerWarnings(provider *sso.Provider) []string {
	var warnings []string
	cfg := provider.Config
	if cfg.UserMapping.Email == "" {
		warnings = append(warnings, "no email mapping; every login will fail")
	}
	if cfg.UserMapping.ID == "" {
		warnings = append(warnings, "no id mapping; users are created without a source id")
	}
	if cfg.ClientID == "" {
		warnings = append(warnings, "no client_id; login requests must carry one")
	}
	if cfg.AuthorizationEndpoint == "" {
		warnings = append(warnings, "no authorization_endpoint; /authorize redirects are unavailable")
	}
	for i, mapping := range cfg.GroupMappings {
		if len(mapping.Groups) > 10 {
			warnings = append(warnings, fmt.Sprintf("group_mappings[%d] grants %d groups", i, len(mapping.Groups)))
		}
	}
	return warnings
}

func hasDefaultRoles(bootstrap config.Bootstrap) bool {
	if len(bootstrap.Roles) == 0 {
		// Roles may already exist in the database
		return true
	}
	defaults := make(map[string]bool)
	for _, entry := range bootstrap.Roles {
		role := entry.Role()
		if role.Default {
			defaults[string(role.Scope)] = true
		}
	}
	return len(defaults) == 2
}
