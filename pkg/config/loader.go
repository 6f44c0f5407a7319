package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, MLBRIDGE_CONFIG env, ./mlbridge.yaml, /etc/mlbridge/mlbridge.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := DiscoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// DiscoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. MLBRIDGE_CONFIG environment variable
// 3. ./mlbridge.yaml in the current directory
// 4. /etc/mlbridge/mlbridge.yaml
//
// Returns empty string if no config file is found.
func DiscoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("MLBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"mlbridge.yaml",
		"/etc/mlbridge/mlbridge.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields, so a
// deployment can redirect tracking without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MLBRIDGE_TRACKING_URI"); v != "" {
		cfg.Server.TrackingURI = v
	}
	if v := os.Getenv("MLBRIDGE_REGISTRY_URI"); v != "" {
		cfg.Server.RegistryURI = v
	}
	if v := os.Getenv("MLBRIDGE_EXPERIMENT"); v != "" {
		cfg.Tracking.Experiment.Name = v
	}
	if v := os.Getenv("MLBRIDGE_RUN_NAME"); v != "" {
		cfg.Tracking.Run.Name = v
	}
}

// resolveFileReferences reads _file credential entries and populates the
// corresponding plain keys. For each "<key>_file" entry, if "<key>" is
// absent or empty, the referenced file is read and its trimmed content
// stored under "<key>".
func resolveFileReferences(cfg *Config) error {
	for key, path := range cfg.Server.Credentials {
		name, ok := strings.CutSuffix(key, "_file")
		if !ok || path == "" {
			continue
		}
		if cfg.Server.Credentials[name] != "" {
			continue
		}
		val, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("server.credentials.%s: %w", key, err)
		}
		cfg.Server.Credentials[name] = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
