// Package databricks provides the "databricks" connection provider.
//
// Databricks workspaces are natively understood by MLflow clients: the
// keyword URI "databricks" (or "databricks://<profile>" for a named CLI
// profile) selects the workspace configured through the Databricks
// environment. The provider therefore passes the keyword through instead of
// resolving a concrete host itself.
package databricks

import (
	"context"

	"github.com/mlbridge-io/mlbridge/pkg/connection"
)

// Conn implements connection.Connection for Databricks workspaces.
type Conn struct{}

var _ connection.Connection = (*Conn)(nil)
var _ connection.RegistryURIProvider = (*Conn)(nil)

func init() {
	connection.Register(&Conn{})
}

// Name returns the provider identifier.
func (c *Conn) Name() string {
	return "databricks"
}

// TrackingURI returns the "databricks" keyword URI, qualified with a CLI
// profile when the "profile" option (or DATABRICKS_CONFIG_PROFILE) is set.
// Credentials are ignored: the native client resolves them itself.
func (c *Conn) TrackingURI(_ context.Context, _, options map[string]string) (string, error) {
	if profile := connection.ValueDefault(options, "profile", "DATABRICKS_CONFIG_PROFILE", ""); profile != "" {
		return "databricks://" + profile, nil
	}
	return "databricks", nil
}

// RegistryURI matches the tracking URI: Databricks serves the model registry
// from the workspace host.
func (c *Conn) RegistryURI(ctx context.Context, credentials, options map[string]string) (string, error) {
	return c.TrackingURI(ctx, credentials, options)
}
