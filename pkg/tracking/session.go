package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mlbridge-io/mlbridge/pkg/api"
)

// ExperimentOptions configure the experiment a Session binds to.
type ExperimentOptions struct {
	// Name of the experiment. Created on first use when missing.
	Name string

	// RestoreIfDeleted restores a soft-deleted experiment of that name
	// instead of failing on the name clash.
	RestoreIfDeleted bool
}

// Session binds a Store to one experiment and tracks the stack of active
// runs. The bottom of the stack is the root run of the pipeline execution;
// nested runs push on top. Stack operations are safe for concurrent use.
type Session struct {
	store Store
	opts  ExperimentOptions

	mu           sync.Mutex
	experimentID string
	stack        []*ActiveRun
}

// NewSession creates a Session. Call Init before starting runs.
func NewSession(store Store, opts ExperimentOptions) *Session {
	if opts.Name == "" {
		opts.Name = "Default"
	}
	return &Session{store: store, opts: opts}
}

// Init resolves the experiment: get by name, restore it when soft-deleted
// and RestoreIfDeleted is set, create it when missing.
func (s *Session) Init(ctx context.Context) error {
	exp, err := s.store.GetExperimentByName(ctx, s.opts.Name)
	switch {
	case err == nil:
		if exp.LifecycleStage == api.LifecycleStageDeleted {
			if !s.opts.RestoreIfDeleted {
				return api.NewInvalidStateError(
					"experiment %q is deleted; restore it or enable restore_if_deleted", s.opts.Name)
			}
			if err := s.store.RestoreExperiment(ctx, exp.ExperimentID); err != nil {
				return fmt.Errorf("restoring experiment %q: %w", s.opts.Name, err)
			}
			slog.Info("restored deleted experiment", "experiment", s.opts.Name, "id", exp.ExperimentID)
		}
		s.setExperimentID(exp.ExperimentID)
		return nil

	case errors.Is(err, ErrNotFound):
		id, err := s.store.CreateExperiment(ctx, s.opts.Name)
		if err != nil {
			// Lost a creation race: fall back to the winner.
			if errors.Is(err, ErrAlreadyExists) {
				exp, getErr := s.store.GetExperimentByName(ctx, s.opts.Name)
				if getErr == nil {
					s.setExperimentID(exp.ExperimentID)
					return nil
				}
			}
			return fmt.Errorf("creating experiment %q: %w", s.opts.Name, err)
		}
		slog.Info("created experiment", "experiment", s.opts.Name, "id", id)
		s.setExperimentID(id)
		return nil

	default:
		return fmt.Errorf("resolving experiment %q: %w", s.opts.Name, err)
	}
}

func (s *Session) setExperimentID(id string) {
	s.mu.Lock()
	s.experimentID = id
	s.mu.Unlock()
}

// ExperimentID returns the resolved experiment ID, empty before Init.
func (s *Session) ExperimentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.experimentID
}

// ExperimentName returns the configured experiment name.
func (s *Session) ExperimentName() string {
	return s.opts.Name
}

// Store returns the underlying tracking store.
func (s *Session) Store() Store {
	return s.store
}

// runConfig collects StartRun options.
type runConfig struct {
	runID    string
	name     string
	nested   bool
	parentID string
	tags     map[string]string
}

// RunOption configures StartRun.
type RunOption func(*runConfig)

// WithRunID resumes an existing run instead of creating one.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithRunName names the new run.
func WithRunName(name string) RunOption {
	return func(c *runConfig) { c.name = name }
}

// WithNested starts the run as a child of the current active run (or of the
// parent chosen with WithParent).
func WithNested() RunOption {
	return func(c *runConfig) { c.nested = true }
}

// WithParent nests the run under the given run ID. Implies WithNested.
func WithParent(runID string) RunOption {
	return func(c *runConfig) { c.nested = true; c.parentID = runID }
}

// WithTags sets additional tags on the new run.
func WithTags(tags map[string]string) RunOption {
	return func(c *runConfig) { c.tags = tags }
}

// StartRun creates (or resumes) a run and pushes it onto the active stack.
func (s *Session) StartRun(ctx context.Context, opts ...RunOption) (*ActiveRun, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.runID != "" {
		run, err := s.store.GetRun(ctx, cfg.runID)
		if err != nil {
			return nil, fmt.Errorf("resuming run %s: %w", cfg.runID, err)
		}
		if err := s.store.UpdateRun(ctx, run.Info.RunID, api.RunStatusRunning, 0); err != nil {
			return nil, fmt.Errorf("resuming run %s: %w", cfg.runID, err)
		}
		run.Info.Status = api.RunStatusRunning
		return s.push(run), nil
	}

	experimentID := s.ExperimentID()
	if experimentID == "" {
		return nil, api.NewInvalidStateError("session has no experiment; call Init first")
	}

	tags := make([]api.RunTag, 0, len(cfg.tags)+2)
	for k, v := range cfg.tags {
		tags = append(tags, api.RunTag{Key: k, Value: v})
	}

	if cfg.nested {
		parentID := cfg.parentID
		if parentID == "" {
			active := s.ActiveRun()
			if active == nil {
				return nil, api.NewInvalidStateError("cannot start a nested run: no run is active")
			}
			parentID = active.ID()
		}
		tags = setTagValue(tags, api.TagParentRunID, parentID)
	}
	if cfg.name != "" {
		tags = setTagValue(tags, api.TagRunName, cfg.name)
	}

	run, err := s.store.CreateRun(ctx, experimentID, cfg.name, time.Now().UnixMilli(), tags)
	if err != nil {
		return nil, fmt.Errorf("starting run %q: %w", cfg.name, err)
	}
	slog.Debug("started run", "run_id", run.Info.RunID, "name", cfg.name, "nested", cfg.nested)
	return s.push(run), nil
}

func (s *Session) push(run *api.Run) *ActiveRun {
	a := &ActiveRun{sess: s, run: run}
	s.mu.Lock()
	s.stack = append(s.stack, a)
	s.mu.Unlock()
	return a
}

func (s *Session) pop(a *ActiveRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] == a {
			s.stack = append(s.stack[:i], s.stack[i+1:]...)
			return
		}
	}
}

// ActiveRun returns the top of the run stack, nil when no run is active.
func (s *Session) ActiveRun() *ActiveRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// RootRun returns the bottom of the run stack, the run the pipeline
// originally started. Child dispatch anchors at the root so that nesting
// depth inside a pipeline step does not change where partitions attach.
func (s *Session) RootRun() *ActiveRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[0]
}

// setTagValue overwrites or appends a tag in a tag slice.
func setTagValue(tags []api.RunTag, key, value string) []api.RunTag {
	for i := range tags {
		if tags[i].Key == key {
			tags[i].Value = value
			return tags
		}
	}
	return append(tags, api.RunTag{Key: key, Value: value})
}

// ActiveRun is a run on the session's active stack.
type ActiveRun struct {
	sess *Session
	run  *api.Run
}

// ID returns the run ID.
func (a *ActiveRun) ID() string {
	return a.run.Info.RunID
}

// Name returns the run name.
func (a *ActiveRun) Name() string {
	return a.run.Info.RunName
}

// Run returns the run as created by the store.
func (a *ActiveRun) Run() *api.Run {
	return a.run
}

// End finishes the run with FINISHED status and removes it from the stack.
func (a *ActiveRun) End(ctx context.Context) error {
	return a.EndWithStatus(ctx, api.RunStatusFinished)
}

// EndWithStatus finishes the run with the given terminal status.
func (a *ActiveRun) EndWithStatus(ctx context.Context, status api.RunStatus) error {
	a.sess.pop(a)
	if err := a.sess.store.UpdateRun(ctx, a.ID(), status, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("ending run %s: %w", a.ID(), err)
	}
	return nil
}
