package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mlbridge-io/mlbridge/pkg/connection"
	"github.com/mlbridge-io/mlbridge/pkg/observability"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"

	// Built-in connection providers and store backends register themselves.
	_ "github.com/mlbridge-io/mlbridge/pkg/connection/azureml"
	_ "github.com/mlbridge-io/mlbridge/pkg/connection/databricks"
	_ "github.com/mlbridge-io/mlbridge/pkg/tracking/filestore"
	_ "github.com/mlbridge-io/mlbridge/pkg/tracking/memory"
	_ "github.com/mlbridge-io/mlbridge/pkg/tracking/postgres"
)

// Runtime is the assembled tracking stack for one project: the resolved
// URIs, an open store, and a session bound to the configured experiment.
type Runtime struct {
	Config      *Config
	TrackingURI string
	RegistryURI string
	Store       tracking.Store
	Session     *tracking.Session
}

// Close releases the underlying store.
func (r *Runtime) Close() error {
	if r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Setup resolves the configured tracking and registry URIs, opens the
// matching store, and initializes a session on the configured experiment.
// Relative local paths are resolved against projectPath.
//
// The tracking URI is taken from, in order: the configured connection
// provider, server.tracking_uri, the MLFLOW_TRACKING_URI environment
// variable, and finally the local "mlruns" directory.
func Setup(ctx context.Context, cfg *Config, projectPath string) (*Runtime, error) {
	trackingURI, registryURI, err := ResolveURIs(ctx, cfg, projectPath)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, trackingURI, cfg.Server.Credentials)
	if err != nil {
		return nil, err
	}

	session := tracking.NewSession(store, tracking.ExperimentOptions{
		Name:             cfg.Tracking.Experiment.Name,
		RestoreIfDeleted: cfg.Tracking.Experiment.RestoreIfDeleted,
	})
	if err := session.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing experiment %q: %w", cfg.Tracking.Experiment.Name, err)
	}

	return &Runtime{
		Config:      cfg,
		TrackingURI: trackingURI,
		RegistryURI: registryURI,
		Store:       store,
		Session:     session,
	}, nil
}

// ResolveURIs resolves the tracking and registry URIs from the configured
// sources without opening a store. Setup and the check command share it so
// both report the same resolution.
func ResolveURIs(ctx context.Context, cfg *Config, projectPath string) (trackingURI, registryURI string, err error) {
	creds := cfg.Server.Credentials
	options := cfg.Server.Connection.Options

	trackingURI, err = resolveTrackingURI(ctx, cfg, creds, options, projectPath)
	if err != nil {
		return "", "", err
	}
	registryURI, err = resolveRegistryURI(ctx, cfg, trackingURI, creds, options, projectPath)
	if err != nil {
		return "", "", err
	}
	return trackingURI, registryURI, nil
}

func resolveTrackingURI(ctx context.Context, cfg *Config, creds, options map[string]string, projectPath string) (string, error) {
	if provider := cfg.Server.Connection.Provider; provider != "" {
		return connection.Resolve(ctx, provider, creds, options)
	}
	value := cfg.Server.TrackingURI
	if value == "" {
		value = os.Getenv("MLFLOW_TRACKING_URI")
	}
	if value == "" {
		value = "mlruns"
	}
	return connection.ResolveURI(ctx, value, creds, options, projectPath)
}

func resolveRegistryURI(ctx context.Context, cfg *Config, trackingURI string, creds, options map[string]string, projectPath string) (string, error) {
	if value := cfg.Server.RegistryURI; value != "" {
		if _, ok := connection.Lookup(value); ok {
			return connection.ResolveRegistry(ctx, value, creds, options)
		}
		return connection.NormalizeURI(value, projectPath)
	}
	if provider := cfg.Server.Connection.Provider; provider != "" {
		return connection.ResolveRegistry(ctx, provider, creds, options)
	}
	return trackingURI, nil
}

// OpenStore picks the store implementation for a resolved URI and wraps it
// with request metrics. http(s) and Databricks URIs go through the REST
// client; everything else dispatches on the URI scheme to a registered
// backend.
func OpenStore(ctx context.Context, uri string, creds map[string]string) (tracking.Store, error) {
	var store tracking.Store
	var err error
	switch {
	case uri == "databricks",
		strings.HasPrefix(uri, "databricks://"),
		strings.HasPrefix(uri, "http://"),
		strings.HasPrefix(uri, "https://"):
		store, err = tracking.NewClient(uri, tracking.WithCredentials(tracking.CredentialsFromMap(creds)))
	default:
		store, err = tracking.Open(ctx, uri)
	}
	if err != nil {
		return nil, err
	}
	return observability.InstrumentStore(store, backendLabel(uri)), nil
}

// backendLabel derives the metrics backend label from a resolved URI.
func backendLabel(uri string) string {
	if uri == "databricks" {
		return "databricks"
	}
	if scheme, _, ok := strings.Cut(uri, "://"); ok {
		return scheme
	}
	return "file"
}
