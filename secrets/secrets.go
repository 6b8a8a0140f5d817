// Package secrets copies backend credentials from a cloud secret store into
// the process environment before the generator is built.
package secrets

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/nsa-yoda/ReplyXL/async"
	"github.com/nsa-yoda/ReplyXL/config"
	"github.com/nsa-yoda/ReplyXL/logger"
	"go.uber.org/zap"
)

type Source interface {
	Name() string
	Fetch(ctx context.Context) (map[string]string, error)
}

// FromSettings returns the sources configured in settings, possibly none.
func FromSettings(settings config.Settings) []Source {
	var sources []Source
	if settings.AzureKeyVaultName != "" {
		sources = append(sources, NewAzureKeyVault(settings.AzureKeyVaultName))
	}
	if settings.GcpProjectId != "" {
		sources = append(sources, NewGCPSecretManager(settings.GcpProjectId))
	}
	return sources
}

// LoadIntoEnv sets every fetched secret that is not already present in the
// environment. Sources are fetched concurrently and applied in order, so an
// earlier source wins over a later one. A failing source is logged and
// skipped. Returns the names that were set.
func LoadIntoEnv(ctx context.Context, sources ...Source) []string {
	pending := make([]<-chan async.Result[map[string]string], len(sources))
	for i, src := range sources {
		pending[i] = async.Go(func() (map[string]string, error) { return src.Fetch(ctx) })
	}

	var loaded []string
	for i, src := range sources {
		values, err := async.Await(pending[i])
		if err != nil {
			logger.Error("Failed to load secrets", zap.String("source", src.Name()), zap.Error(err))
			continue
		}

		for name, value := range values {
			key := envName(name)
			if _, exists := os.LookupEnv(key); exists {
				continue
			}
			if err := os.Setenv(key, value); err != nil {
				logger.Error("Failed to set secret", zap.String("name", key), zap.Error(err))
				continue
			}
			loaded = append(loaded, key)
		}
	}

	sort.Strings(loaded)
	if len(loaded) > 0 {
		logger.Info("Loaded secrets into environment", zap.Strings("secrets", loaded))
	}
	return loaded
}

// envName maps vault naming (dashes only, e.g. ANTHROPIC-API-KEY) to an
// environment variable name.
func envName(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(secret, "-", "_"))
}
