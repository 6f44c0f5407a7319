package api

import (
	"regexp"
	"strings"
)

// Run names may not contain forward slashes: tracking servers reserve "/" as
// a path separator in several surfaces (artifact paths, registry sources).
// Partition keys that carry slashes are mapped to backslashes instead.

// NormalizeRunName returns name with every "/" replaced by `\`. The result
// is idempotent under repeated normalization.
func NormalizeRunName(name string) string {
	return strings.ReplaceAll(name, "/", `\`)
}

// ChildModelName derives the registered model name for a partition: the
// normalized partition key and the base model name joined by `\`.
func ChildModelName(partitionKey, modelName string) string {
	return NormalizeRunName(partitionKey) + `\` + modelName
}

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-./ :]+$`)

// ValidateKey reports whether a metric, param, or tag key is acceptable to
// the tracking protocol: alphanumerics, underscore, dash, period, space,
// colon, and slash.
func ValidateKey(key string) bool {
	return keyPattern.MatchString(key)
}
