package connection

import (
	"context"
	"os"

	"github.com/mlbridge-io/mlbridge/pkg/api"
)

// Connection resolves the URI of a tracking server from credentials and
// options. Credentials hold secrets (tokens, passwords), options hold
// non-secret settings (workspace names, regions).
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Connection interface {
	// Name returns the provider identifier the connection registers under
	// (e.g. "databricks", "azureml").
	Name() string

	// TrackingURI resolves the tracking server URI.
	TrackingURI(ctx context.Context, credentials, options map[string]string) (string, error)
}

// RegistryURIProvider is implemented by connections whose model registry
// lives at a different URI than the tracking server. Connections that do not
// implement it use the tracking URI for the registry as well.
type RegistryURIProvider interface {
	// RegistryURI resolves the model registry URI.
	RegistryURI(ctx context.Context, credentials, options map[string]string) (string, error)
}

// Value looks up key in m, falling back to the envKey environment variable.
// Explicit configuration always wins over the environment. A missing value
// is a configuration error naming both the key and the variable.
func Value(m map[string]string, key, envKey string) (string, error) {
	if v, ok := m[key]; ok && v != "" {
		return v, nil
	}
	if v := os.Getenv(envKey); v != "" {
		return v, nil
	}
	return "", api.NewConfigurationError(
		"connection option %q not set and environment variable %s is empty", key, envKey)
}

// ValueDefault is Value with a fallback instead of an error.
func ValueDefault(m map[string]string, key, envKey, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return def
}
