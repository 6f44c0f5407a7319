// Package dataset provides catalog-style datasets that persist pipeline
// values to a tracking store: single metrics, metric histories, metric maps,
// serialized models, and partitioned wrappers that fan a map of values out
// into one child run per partition key.
//
// Datasets move dynamically typed payloads because the partitioned wrapper
// dispatches untyped partition values; each concrete dataset validates the
// payload it receives. All datasets resolve the run to log into from an
// explicit run ID when configured, falling back to the session's active run.
package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// DataSet is one catalog entry: a named slot that can persist and recall a
// value through the tracking store.
type DataSet interface {
	// Save persists value. The accepted payload types are dataset-specific.
	Save(ctx context.Context, value any) error

	// Load recalls the stored value.
	Load(ctx context.Context) (any, error)

	// Exists reports whether the dataset has stored data.
	Exists(ctx context.Context) (bool, error)

	// Describe returns the dataset configuration for logs and errors.
	Describe() map[string]any
}

// Error wraps a dataset operation failure with the dataset identity.
type Error struct {
	Op      string // "save", "load", "exists"
	DataSet string // registered type name
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dataset %s: %s: %v", e.DataSet, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// opErr wraps err unless it already is an *Error from a nested dataset.
func opErr(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, DataSet: name, Err: err}
}

// ---------------------------------------------------------------------------
// Shared dataset state
// ---------------------------------------------------------------------------

// base carries what every dataset shares: the session, an optional pinned
// run ID, and the logging-activation gate.
type base struct {
	sess  *tracking.Session
	runID string

	mu       sync.Mutex
	disabled bool
}

// SetLoggingActive turns logging on or off. A deactivated dataset accepts
// saves and drops them, so one switch can silence a whole catalog without
// touching the pipeline.
func (b *base) SetLoggingActive(on bool) {
	b.mu.Lock()
	b.disabled = !on
	b.mu.Unlock()
}

// LoggingActive reports whether saves reach the store.
func (b *base) LoggingActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.disabled
}

// RunID returns the pinned run ID, empty when the dataset follows the
// session's active run.
func (b *base) RunID() string { return b.runID }

// resolveRun returns the run to log into: the pinned run ID when set,
// otherwise the session's active run.
func (b *base) resolveRun() (string, error) {
	if b.runID != "" {
		return b.runID, nil
	}
	if b.sess != nil {
		if a := b.sess.ActiveRun(); a != nil {
			return a.ID(), nil
		}
	}
	return "", api.NewInvalidStateError("no run to log into: set run_id or start a run first")
}

func (b *base) store() tracking.Store {
	return b.sess.Store()
}

// ---------------------------------------------------------------------------
// Config-driven construction
// ---------------------------------------------------------------------------

// Constructor builds a dataset from its configuration block. The block is
// the raw decoded YAML mapping of a catalog entry, including the "type" key.
type Constructor func(sess *tracking.Session, cfg map[string]any) (DataSet, error)

var (
	typesMu sync.RWMutex
	types   = make(map[string]Constructor)
)

// RegisterType makes a dataset type available to FromConfig. It panics when
// the name is empty or already registered, mirroring database/sql.Register.
func RegisterType(name string, c Constructor) {
	typesMu.Lock()
	defer typesMu.Unlock()
	if name == "" || c == nil {
		panic("dataset: RegisterType with empty name or nil constructor")
	}
	if _, dup := types[name]; dup {
		panic("dataset: RegisterType called twice for type " + name)
	}
	types[name] = c
}

// FromConfig builds the dataset described by a configuration block. The
// "type" key selects the registered constructor.
func FromConfig(sess *tracking.Session, cfg map[string]any) (DataSet, error) {
	name := stringOpt(cfg, "type")
	if name == "" {
		return nil, api.NewConfigurationError("dataset config is missing the type key")
	}
	typesMu.RLock()
	c, ok := types[name]
	typesMu.RUnlock()
	if !ok {
		return nil, api.NewConfigurationError(
			"unknown dataset type %q (registered: %s)", name, strings.Join(typeNames(), ", "))
	}
	return c(sess, cfg)
}

func typeNames() []string {
	typesMu.RLock()
	defer typesMu.RUnlock()
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stringOpt reads a string-valued config key, tolerating absence.
func stringOpt(cfg map[string]any, key string) string {
	v, _ := cfg[key].(string)
	return v
}

// mapOpt reads a nested mapping config key, tolerating absence.
func mapOpt(cfg map[string]any, key string) map[string]any {
	v, _ := cfg[key].(map[string]any)
	return v
}
