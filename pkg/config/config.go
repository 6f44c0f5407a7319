// Package config provides unified configuration for mlbridge.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (MLBRIDGE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

// Config holds all configuration for mlbridge.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Tracking TrackingConfig `yaml:"tracking"`
	UI       UIConfig       `yaml:"ui"`
}

// ServerConfig holds tracking server connection settings.
type ServerConfig struct {
	// TrackingURI points at the tracking backend: an http(s) server, a
	// file path or file:// URI, a postgres:// DSN, or the name of a
	// registered connection provider (e.g. "databricks").
	TrackingURI string `yaml:"tracking_uri"`

	// RegistryURI addresses the model registry when it differs from the
	// tracking server. Defaults to the resolved tracking URI.
	RegistryURI string `yaml:"registry_uri"`

	// Connection resolves the tracking URI through a named provider
	// instead of spelling it out. Mutually exclusive with TrackingURI.
	Connection ConnectionConfig `yaml:"connection"`

	// Credentials are passed to the tracking client. Keys with a _file
	// suffix are read from the referenced file.
	Credentials map[string]string `yaml:"credentials"`
}

// ConnectionConfig selects a connection provider and its options.
type ConnectionConfig struct {
	Provider string            `yaml:"provider"` // e.g. "databricks", "azureml"
	Options  map[string]string `yaml:"options"`
}

// TrackingConfig holds run and parameter logging settings.
type TrackingConfig struct {
	DisableTracking DisableTrackingConfig `yaml:"disable_tracking"`
	Experiment      ExperimentConfig      `yaml:"experiment"`
	Run             RunConfig             `yaml:"run"`
	Params          ParamsConfig          `yaml:"params"`
}

// DisableTrackingConfig turns tracking off for named pipelines.
type DisableTrackingConfig struct {
	Pipelines []string `yaml:"pipelines"`
}

// ExperimentConfig names the experiment runs are created under.
type ExperimentConfig struct {
	Name             string `yaml:"name"`               // default: "Default"
	RestoreIfDeleted bool   `yaml:"restore_if_deleted"` // default: true
}

// RunConfig controls how the pipeline run is started.
type RunConfig struct {
	ID     string `yaml:"id"`     // resume this run instead of creating one
	Name   string `yaml:"name"`   // optional run name
	Nested bool   `yaml:"nested"` // default: true
}

// ParamsConfig controls parameter logging.
type ParamsConfig struct {
	DictParams         DictParamsConfig `yaml:"dict_params"`
	LongParamsStrategy string           `yaml:"long_params_strategy"` // "fail", "truncate" or "tag", default: "fail"
}

// DictParamsConfig controls dictionary parameter flattening.
type DictParamsConfig struct {
	Flatten   bool   `yaml:"flatten"`   // default: false
	Recursive bool   `yaml:"recursive"` // default: true
	Sep       string `yaml:"sep"`       // default: "."
}

// UIConfig holds settings for launching the tracking UI.
type UIConfig struct {
	Host string `yaml:"host"` // default: "127.0.0.1"
	Port string `yaml:"port"` // default: "5000"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Tracking: TrackingConfig{
			Experiment: ExperimentConfig{
				Name:             "Default",
				RestoreIfDeleted: true,
			},
			Run: RunConfig{
				Nested: true,
			},
			Params: ParamsConfig{
				DictParams: DictParamsConfig{
					Flatten:   false,
					Recursive: true,
					Sep:       ".",
				},
				LongParamsStrategy: "fail",
			},
		},
		UI: UIConfig{
			Host: "127.0.0.1",
			Port: "5000",
		},
	}
}

// TrackingDisabled reports whether tracking is switched off for a pipeline.
func (c *Config) TrackingDisabled(pipeline string) bool {
	for _, p := range c.Tracking.DisableTracking.Pipelines {
		if p == pipeline {
			return true
		}
	}
	return false
}
