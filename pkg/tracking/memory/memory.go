// Package memory provides an in-memory tracking.Store for tests and
// ephemeral runs. All state is lost when the process exits.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// runEntry holds a run and its full metric history.
type runEntry struct {
	run     *api.Run
	history map[string][]api.Metric
}

// Store is an in-memory tracking.Store.
type Store struct {
	mu          sync.RWMutex
	experiments map[string]*api.Experiment
	runs        map[string]*runEntry
	models      map[string]*api.RegisteredModel
	versions    map[string][]*api.ModelVersion
	artifacts   map[string]map[string][]byte
	nextExpID   int
}

// Ensure Store implements tracking.Store at compile time.
var _ tracking.Store = (*Store)(nil)

func init() {
	tracking.RegisterScheme("memory", func(_ context.Context, _ *url.URL) (tracking.Store, error) {
		return New(), nil
	})
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		experiments: make(map[string]*api.Experiment),
		runs:        make(map[string]*runEntry),
		models:      make(map[string]*api.RegisteredModel),
		versions:    make(map[string][]*api.ModelVersion),
		artifacts:   make(map[string]map[string][]byte),
	}
}

// ---------------------------------------------------------------------------
// Experiments
// ---------------------------------------------------------------------------

// CreateExperiment creates a named experiment with a sequential decimal ID.
func (s *Store) CreateExperiment(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", api.NewInvalidParameterError("experiment name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, exp := range s.experiments {
		if exp.Name == name && exp.LifecycleStage != api.LifecycleStageDeleted {
			return "", tracking.ErrAlreadyExists
		}
	}

	id := strconv.Itoa(s.nextExpID)
	s.nextExpID++
	now := time.Now().UnixMilli()
	s.experiments[id] = &api.Experiment{
		ExperimentID:     id,
		Name:             name,
		ArtifactLocation: "mlflow-artifacts:/" + id,
		LifecycleStage:   api.LifecycleStageActive,
		CreationTime:     now,
		LastUpdateTime:   now,
	}
	return id, nil
}

// GetExperimentByName returns an experiment by name, deleted ones included.
func (s *Store) GetExperimentByName(_ context.Context, name string) (*api.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, exp := range s.experiments {
		if exp.Name == name {
			cp := *exp
			return &cp, nil
		}
	}
	return nil, tracking.ErrNotFound
}

// RestoreExperiment moves a deleted experiment back to the active stage.
func (s *Store) RestoreExperiment(_ context.Context, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[experimentID]
	if !ok {
		return tracking.ErrNotFound
	}
	exp.LifecycleStage = api.LifecycleStageActive
	exp.LastUpdateTime = time.Now().UnixMilli()
	return nil
}

// DeleteExperiment soft-deletes an experiment. Runs are kept.
func (s *Store) DeleteExperiment(_ context.Context, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[experimentID]
	if !ok {
		return tracking.ErrNotFound
	}
	exp.LifecycleStage = api.LifecycleStageDeleted
	exp.LastUpdateTime = time.Now().UnixMilli()
	return nil
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// CreateRun starts a new run in the given experiment.
func (s *Store) CreateRun(_ context.Context, experimentID, name string, startTime int64, tags []api.RunTag) (*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[experimentID]; !ok {
		return nil, tracking.ErrNotFound
	}

	if startTime == 0 {
		startTime = time.Now().UnixMilli()
	}
	runID := api.NewRunID()

	runTags := make([]api.RunTag, len(tags))
	copy(runTags, tags)
	if name != "" {
		runTags = upsertTag(runTags, api.TagRunName, name)
	}

	run := &api.Run{
		Info: api.RunInfo{
			RunID:          runID,
			RunName:        name,
			ExperimentID:   experimentID,
			Status:         api.RunStatusRunning,
			StartTime:      startTime,
			ArtifactURI:    fmt.Sprintf("mlflow-artifacts:/%s/%s/artifacts", experimentID, runID),
			LifecycleStage: api.LifecycleStageActive,
		},
		Data: api.RunData{Tags: runTags},
	}
	s.runs[runID] = &runEntry{run: run, history: make(map[string][]api.Metric)}
	return copyRun(run), nil
}

// GetRun returns a run with its logged data.
func (s *Store) GetRun(_ context.Context, runID string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.runs[runID]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	return copyRun(e.run), nil
}

// UpdateRun sets the status and optionally the end time of a run.
func (s *Store) UpdateRun(_ context.Context, runID string, status api.RunStatus, endTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.runs[runID]
	if !ok {
		return tracking.ErrNotFound
	}
	if status != "" {
		e.run.Info.Status = status
	}
	if endTime != 0 {
		e.run.Info.EndTime = endTime
	}
	return nil
}

// SearchRuns returns matching runs of the given experiments, newest first.
func (s *Store) SearchRuns(_ context.Context, experimentIDs []string, filter string, maxResults int) ([]*api.Run, error) {
	f, err := tracking.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	wantExp := make(map[string]bool, len(experimentIDs))
	for _, id := range experimentIDs {
		wantExp[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*api.Run
	for _, e := range s.runs {
		if len(wantExp) > 0 && !wantExp[e.run.Info.ExperimentID] {
			continue
		}
		if !f.Matches(e.run) {
			continue
		}
		matches = append(matches, copyRun(e.run))
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Info.StartTime != matches[j].Info.StartTime {
			return matches[i].Info.StartTime > matches[j].Info.StartTime
		}
		return matches[i].Info.RunID > matches[j].Info.RunID
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

// ---------------------------------------------------------------------------
// Run data
// ---------------------------------------------------------------------------

// LogMetric appends a metric point and updates the run's latest value.
func (s *Store) LogMetric(_ context.Context, runID string, m api.Metric) error {
	if !api.ValidateKey(m.Key) {
		return api.NewInvalidParameterError("invalid metric key %q", m.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.runs[runID]
	if !ok {
		return tracking.ErrNotFound
	}
	s.logMetricLocked(e, m)
	return nil
}

func (s *Store) logMetricLocked(e *runEntry, m api.Metric) {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	e.history[m.Key] = append(e.history[m.Key], m)

	for i := range e.run.Data.Metrics {
		if e.run.Data.Metrics[i].Key == m.Key {
			e.run.Data.Metrics[i] = m
			return
		}
	}
	e.run.Data.Metrics = append(e.run.Data.Metrics, m)
}

// LogParam logs a write-once parameter. Logging the same value again is a
// no-op, a different value is rejected.
func (s *Store) LogParam(_ context.Context, runID string, p api.Param) error {
	if !api.ValidateKey(p.Key) {
		return api.NewInvalidParameterError("invalid param key %q", p.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.runs[runID]
	if !ok {
		return tracking.ErrNotFound
	}
	return logParamLocked(e, p)
}

func logParamLocked(e *runEntry, p api.Param) error {
	for _, existing := range e.run.Data.Params {
		if existing.Key == p.Key {
			if existing.Value != p.Value {
				return api.NewInvalidParameterError(
					"param %q already logged with value %q (new value %q)", p.Key, existing.Value, p.Value)
			}
			return nil
		}
	}
	e.run.Data.Params = append(e.run.Data.Params, p)
	return nil
}

// SetTag sets or overwrites a run tag.
func (s *Store) SetTag(_ context.Context, runID string, t api.RunTag) error {
	if !api.ValidateKey(t.Key) {
		return api.NewInvalidParameterError("invalid tag key %q", t.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.runs[runID]
	if !ok {
		return tracking.ErrNotFound
	}
	e.run.Data.Tags = upsertTag(e.run.Data.Tags, t.Key, t.Value)
	if t.Key == api.TagRunName {
		e.run.Info.RunName = t.Value
	}
	return nil
}

// LogBatch logs metrics, params, and tags atomically. The protocol caps a
// batch at 1000 entries.
func (s *Store) LogBatch(_ context.Context, runID string, metrics []api.Metric, params []api.Param, tags []api.RunTag) error {
	if len(metrics)+len(params)+len(tags) > 1000 {
		return api.NewInvalidParameterError("batch exceeds 1000 entries")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.runs[runID]
	if !ok {
		return tracking.ErrNotFound
	}
	for _, p := range params {
		if err := logParamLocked(e, p); err != nil {
			return err
		}
	}
	for _, m := range metrics {
		s.logMetricLocked(e, m)
	}
	for _, t := range tags {
		e.run.Data.Tags = upsertTag(e.run.Data.Tags, t.Key, t.Value)
		if t.Key == api.TagRunName {
			e.run.Info.RunName = t.Value
		}
	}
	return nil
}

// GetMetricHistory returns all points of one metric in log order.
func (s *Store) GetMetricHistory(_ context.Context, runID, key string) ([]api.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.runs[runID]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	history := e.history[key]
	out := make([]api.Metric, len(history))
	copy(out, history)
	return out, nil
}

// ---------------------------------------------------------------------------
// Model registry
// ---------------------------------------------------------------------------

// CreateRegisteredModel creates a registry entry. Existing names are kept.
func (s *Store) CreateRegisteredModel(_ context.Context, name string) error {
	if name == "" {
		return api.NewInvalidParameterError("registered model name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[name]; ok {
		return nil
	}
	now := time.Now().UnixMilli()
	s.models[name] = &api.RegisteredModel{
		Name:                 name,
		CreationTimestamp:    now,
		LastUpdatedTimestamp: now,
	}
	return nil
}

// CreateModelVersion adds the next version to a registered model.
func (s *Store) CreateModelVersion(_ context.Context, name, source, runID string) (*api.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.models[name]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	now := time.Now().UnixMilli()
	v := &api.ModelVersion{
		Name:              name,
		Version:           strconv.Itoa(len(s.versions[name]) + 1),
		RunID:             runID,
		Source:            source,
		Status:            "READY",
		CreationTimestamp: now,
	}
	s.versions[name] = append(s.versions[name], v)
	m.LastUpdatedTimestamp = now

	cp := *v
	return &cp, nil
}

// SearchModelVersions supports the single-clause filters "name = '<v>'" and
// "run_id = '<v>'"; an empty filter returns every version.
func (s *Store) SearchModelVersions(_ context.Context, filter string) ([]*api.ModelVersion, error) {
	field, value, err := tracking.ParseVersionFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.ModelVersion
	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, v := range s.versions[name] {
			switch field {
			case "name":
				if v.Name != value {
					continue
				}
			case "run_id":
				if v.RunID != value {
					continue
				}
			}
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// UploadArtifact stores an artifact blob for a run.
func (s *Store) UploadArtifact(_ context.Context, runID, path string, r io.Reader) error {
	if path == "" || strings.Contains(path, "..") {
		return api.NewInvalidParameterError("invalid artifact path %q", path)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading artifact %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return tracking.ErrNotFound
	}
	files := s.artifacts[runID]
	if files == nil {
		files = make(map[string][]byte)
		s.artifacts[runID] = files
	}
	files[strings.TrimLeft(path, "/")] = data
	return nil
}

// DownloadArtifact opens a stored artifact blob.
func (s *Store) DownloadArtifact(_ context.Context, runID, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.artifacts[runID][strings.TrimLeft(path, "/")]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ListArtifacts lists the files and directories directly below path.
func (s *Store) ListArtifacts(_ context.Context, runID, path string) ([]api.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, tracking.ErrNotFound
	}

	prefix := strings.Trim(path, "/")
	if prefix != "" {
		prefix += "/"
	}

	seen := make(map[string]api.FileInfo)
	for p, data := range s.artifacts[runID] {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			dir := prefix + rest[:idx]
			seen[dir] = api.FileInfo{Path: dir, IsDir: true}
		} else {
			seen[p] = api.FileInfo{Path: p, FileSize: int64(len(data))}
		}
	}

	out := make([]api.FileInfo, 0, len(seen))
	for _, fi := range seen {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// copyRun returns a deep copy so callers cannot mutate store state.
func copyRun(r *api.Run) *api.Run {
	cp := *r
	cp.Data.Metrics = append([]api.Metric(nil), r.Data.Metrics...)
	cp.Data.Params = append([]api.Param(nil), r.Data.Params...)
	cp.Data.Tags = append([]api.RunTag(nil), r.Data.Tags...)
	return &cp
}

// upsertTag overwrites or appends a tag.
func upsertTag(tags []api.RunTag, key, value string) []api.RunTag {
	for i := range tags {
		if tags[i].Key == key {
			tags[i].Value = value
			return tags
		}
	}
	return append(tags, api.RunTag{Key: key, Value: value})
}
