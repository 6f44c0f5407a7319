package connection

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/debug"
)

// Registry maps provider names to Connection implementations.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]Connection)}
}

// Register adds a connection under its name. Registering an empty name, a
// nil connection, or a name twice is an error.
func (r *Registry) Register(c Connection) error {
	if c == nil {
		return fmt.Errorf("connection: Register called with nil connection")
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("connection: Register called with empty provider name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connections[name]; exists {
		return fmt.Errorf("connection: provider %q already registered", name)
	}
	r.connections[name] = c
	return nil
}

// Lookup returns the connection registered under name.
func (r *Registry) Lookup(name string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connections[name]
	return c, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connections))
	for name := range r.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve resolves the tracking URI through the named provider. An unknown
// name is a configuration error listing the registered providers.
func (r *Registry) Resolve(ctx context.Context, name string, credentials, options map[string]string) (string, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return "", r.unknownProvider(name)
	}
	uri, err := c.TrackingURI(ctx, credentials, options)
	if err == nil {
		debug.Log("connection", "resolved tracking URI", "provider", name, "uri", uri)
	}
	return uri, err
}

// ResolveRegistry resolves the model registry URI through the named
// provider, falling back to its tracking URI when the provider has no
// separate registry endpoint.
func (r *Registry) ResolveRegistry(ctx context.Context, name string, credentials, options map[string]string) (string, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return "", r.unknownProvider(name)
	}
	if rp, ok := c.(RegistryURIProvider); ok {
		return rp.RegistryURI(ctx, credentials, options)
	}
	return c.TrackingURI(ctx, credentials, options)
}

func (r *Registry) unknownProvider(name string) error {
	names := r.Names()
	if len(names) == 0 {
		return api.NewConfigurationError("unknown connection provider %q (no providers registered; import a provider package)", name)
	}
	return api.NewConfigurationError("unknown connection provider %q (registered: %s)", name, strings.Join(names, ", "))
}

// ResolveURI dispatches a configured URI value: if it names a registered
// provider the provider resolves it, otherwise the value is validated as a
// URI. Scheme-less values are local paths, made absolute against projectPath
// and rewritten to file:// form.
func (r *Registry) ResolveURI(ctx context.Context, value string, credentials, options map[string]string, projectPath string) (string, error) {
	if c, ok := r.Lookup(value); ok {
		return c.TrackingURI(ctx, credentials, options)
	}
	return NormalizeURI(value, projectPath)
}

// NormalizeURI validates a tracking URI value. Values with a scheme pass
// through unchanged; plain paths become file:// URIs, relative ones resolved
// against projectPath.
func NormalizeURI(value, projectPath string) (string, error) {
	if value == "" {
		return "", api.NewConfigurationError("tracking URI is empty")
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" {
		p := value
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectPath, p)
		}
		return "file://" + filepath.ToSlash(p), nil
	}
	return value, nil
}

// Default package-level registry. Provider packages register themselves here
// from init.
var defaultRegistry = NewRegistry()

// Register adds a connection to the default registry. It panics on
// registration conflicts, which are programming errors in package init.
func Register(c Connection) {
	if err := defaultRegistry.Register(c); err != nil {
		panic(err)
	}
}

// Lookup returns a connection from the default registry.
func Lookup(name string) (Connection, bool) {
	return defaultRegistry.Lookup(name)
}

// Names lists the providers in the default registry.
func Names() []string {
	return defaultRegistry.Names()
}

// Resolve resolves a tracking URI through the default registry.
func Resolve(ctx context.Context, name string, credentials, options map[string]string) (string, error) {
	return defaultRegistry.Resolve(ctx, name, credentials, options)
}

// ResolveRegistry resolves a model registry URI through the default registry.
func ResolveRegistry(ctx context.Context, name string, credentials, options map[string]string) (string, error) {
	return defaultRegistry.ResolveRegistry(ctx, name, credentials, options)
}

// ResolveURI dispatches a URI value through the default registry.
func ResolveURI(ctx context.Context, value string, credentials, options map[string]string, projectPath string) (string, error) {
	return defaultRegistry.ResolveURI(ctx, value, credentials, options, projectPath)
}
