// Package connection defines the pluggable resolution of tracking server
// URIs. A Connection turns a set of credentials and options into the URI of
// a managed tracking workspace, so configuration can name a provider (e.g.
// "databricks", "azureml") instead of hard-coding per-environment URIs.
//
// Providers self-register under a unique name in a package-level registry,
// following the database/sql driver convention: importing a provider package
// for its side effects makes it resolvable by name.
//
// Values that do not name a registered provider are treated as URIs: local
// paths are anchored at the project path and rewritten to file:// form,
// everything with a scheme passes through unchanged.
package connection
