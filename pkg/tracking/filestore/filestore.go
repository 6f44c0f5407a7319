// Package filestore implements the tracking store on the local filesystem
// using the conventional mlruns layout: one directory per experiment holding
// a meta.yaml and one directory per run, with metrics, params, tags and
// artifacts as plain files underneath. The layout is readable by standard
// MLflow tooling pointed at the same directory.
package filestore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

const modelsDir = "models"

func init() {
	tracking.RegisterScheme("file", func(_ context.Context, u *url.URL) (tracking.Store, error) {
		path := u.Path
		if path == "" {
			path = u.Host
		}
		return New(path)
	})
}

// Store persists tracking data under a root directory. A process-wide mutex
// serializes writes; concurrent access from multiple processes is not
// coordinated.
type Store struct {
	root string
	mu   sync.Mutex
}

var _ tracking.Store = (*Store)(nil)

// New creates a Store rooted at dir, creating the directory when missing.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving tracking root %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating tracking root %q: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// ---------------------------------------------------------------------------
// Metadata files
// ---------------------------------------------------------------------------

type experimentMeta struct {
	ExperimentID     string `yaml:"experiment_id"`
	Name             string `yaml:"name"`
	ArtifactLocation string `yaml:"artifact_location"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
	CreationTime     int64  `yaml:"creation_time"`
	LastUpdateTime   int64  `yaml:"last_update_time"`
}

type runMeta struct {
	RunID          string `yaml:"run_id"`
	RunName        string `yaml:"run_name"`
	ExperimentID   string `yaml:"experiment_id"`
	Status         string `yaml:"status"`
	StartTime      int64  `yaml:"start_time"`
	EndTime        int64  `yaml:"end_time"`
	ArtifactURI    string `yaml:"artifact_uri"`
	LifecycleStage string `yaml:"lifecycle_stage"`
}

type modelMeta struct {
	Name              string `yaml:"name"`
	CreationTimestamp int64  `yaml:"creation_timestamp"`
}

type versionMeta struct {
	Name              string `yaml:"name"`
	Version           string `yaml:"version"`
	RunID             string `yaml:"run_id"`
	Source            string `yaml:"source"`
	Status            string `yaml:"status"`
	CreationTimestamp int64  `yaml:"creation_timestamp"`
}

func writeMeta(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readMeta(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Experiments
// ---------------------------------------------------------------------------

func (s *Store) experimentPath(id string) string {
	return filepath.Join(s.root, id)
}

// listExperiments reads the meta of every experiment directory. Directories
// without a meta.yaml are skipped.
func (s *Store) listExperiments() ([]experimentMeta, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []experimentMeta
	for _, e := range entries {
		if !e.IsDir() || e.Name() == modelsDir {
			continue
		}
		var meta experimentMeta
		if err := readMeta(filepath.Join(s.root, e.Name(), "meta.yaml"), &meta); err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func (s *Store) CreateExperiment(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", api.NewInvalidParameterError("experiment name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	metas, err := s.listExperiments()
	if err != nil {
		return "", fmt.Errorf("listing experiments: %w", err)
	}
	nextID := 0
	for _, m := range metas {
		if m.Name == name && m.LifecycleStage == string(api.LifecycleStageActive) {
			return "", fmt.Errorf("%w: experiment %q", tracking.ErrAlreadyExists, name)
		}
		if n, err := strconv.Atoi(m.ExperimentID); err == nil && n >= nextID {
			nextID = n + 1
		}
	}

	id := strconv.Itoa(nextID)
	now := time.Now().UnixMilli()
	meta := experimentMeta{
		ExperimentID:     id,
		Name:             name,
		ArtifactLocation: "file://" + filepath.ToSlash(s.experimentPath(id)),
		LifecycleStage:   string(api.LifecycleStageActive),
		CreationTime:     now,
		LastUpdateTime:   now,
	}
	if err := writeMeta(filepath.Join(s.experimentPath(id), "meta.yaml"), meta); err != nil {
		return "", fmt.Errorf("writing experiment meta: %w", err)
	}
	return id, nil
}

func (s *Store) GetExperimentByName(_ context.Context, name string) (*api.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas, err := s.listExperiments()
	if err != nil {
		return nil, fmt.Errorf("listing experiments: %w", err)
	}
	for _, m := range metas {
		if m.Name == name {
			return &api.Experiment{
				ExperimentID:     m.ExperimentID,
				Name:             m.Name,
				ArtifactLocation: m.ArtifactLocation,
				LifecycleStage:   api.LifecycleStage(m.LifecycleStage),
				CreationTime:     m.CreationTime,
				LastUpdateTime:   m.LastUpdateTime,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: experiment %q", tracking.ErrNotFound, name)
}

func (s *Store) RestoreExperiment(_ context.Context, experimentID string) error {
	return s.setExperimentStage(experimentID, api.LifecycleStageActive)
}

// DeleteExperiment soft-deletes an experiment. Runs stay in place.
func (s *Store) DeleteExperiment(_ context.Context, experimentID string) error {
	return s.setExperimentStage(experimentID, api.LifecycleStageDeleted)
}

func (s *Store) setExperimentStage(experimentID string, stage api.LifecycleStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.experimentPath(experimentID), "meta.yaml")
	var meta experimentMeta
	if err := readMeta(path, &meta); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: experiment %s", tracking.ErrNotFound, experimentID)
		}
		return err
	}
	meta.LifecycleStage = string(stage)
	meta.LastUpdateTime = time.Now().UnixMilli()
	return writeMeta(path, meta)
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func (s *Store) runPath(experimentID, runID string) string {
	return filepath.Join(s.root, experimentID, runID)
}

// findRun locates the experiment directory containing a run.
func (s *Store) findRun(runID string) (experimentID string, err error) {
	if !api.ValidateRunID(runID) {
		return "", fmt.Errorf("%w: run %q", tracking.ErrNotFound, runID)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == modelsDir {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), runID, "meta.yaml")); err == nil {
			return e.Name(), nil
		}
	}
	return "", fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
}

func (s *Store) CreateRun(_ context.Context, experimentID, name string, startTime int64, tags []api.RunTag) (*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expMeta experimentMeta
	if err := readMeta(filepath.Join(s.experimentPath(experimentID), "meta.yaml"), &expMeta); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: experiment %s", tracking.ErrNotFound, experimentID)
		}
		return nil, err
	}

	if startTime == 0 {
		startTime = time.Now().UnixMilli()
	}
	runID := api.NewRunID()
	dir := s.runPath(experimentID, runID)
	for _, sub := range []string{"metrics", "params", "tags", "artifacts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating run directory: %w", err)
		}
	}

	meta := runMeta{
		RunID:          runID,
		RunName:        name,
		ExperimentID:   experimentID,
		Status:         string(api.RunStatusRunning),
		StartTime:      startTime,
		ArtifactURI:    expMeta.ArtifactLocation + "/" + runID + "/artifacts",
		LifecycleStage: string(api.LifecycleStageActive),
	}
	if err := writeMeta(filepath.Join(dir, "meta.yaml"), meta); err != nil {
		return nil, fmt.Errorf("writing run meta: %w", err)
	}

	hasName := false
	for _, t := range tags {
		if t.Key == api.TagRunName {
			hasName = true
		}
		if err := s.writeTag(dir, t); err != nil {
			return nil, err
		}
	}
	if name != "" && !hasName {
		if err := s.writeTag(dir, api.RunTag{Key: api.TagRunName, Value: name}); err != nil {
			return nil, err
		}
	}
	return s.loadRun(experimentID, runID)
}

func (s *Store) GetRun(_ context.Context, runID string) (*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID, err := s.findRun(runID)
	if err != nil {
		return nil, err
	}
	return s.loadRun(experimentID, runID)
}

func (s *Store) UpdateRun(_ context.Context, runID string, status api.RunStatus, endTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID, err := s.findRun(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(s.runPath(experimentID, runID), "meta.yaml")
	var meta runMeta
	if err := readMeta(path, &meta); err != nil {
		return err
	}
	if status != "" {
		meta.Status = string(status)
	}
	if endTime != 0 {
		meta.EndTime = endTime
	}
	return writeMeta(path, meta)
}

func (s *Store) SearchRuns(_ context.Context, experimentIDs []string, filter string, maxResults int) ([]*api.Run, error) {
	parsed, err := tracking.ParseFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*api.Run
	for _, expID := range experimentIDs {
		entries, err := os.ReadDir(s.experimentPath(expID))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() || !api.ValidateRunID(e.Name()) {
				continue
			}
			run, err := s.loadRun(expID, e.Name())
			if err != nil {
				return nil, err
			}
			if parsed.Matches(run) {
				out = append(out, run)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Info.StartTime != out[j].Info.StartTime {
			return out[i].Info.StartTime > out[j].Info.StartTime
		}
		return out[i].Info.RunID > out[j].Info.RunID
	})
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// loadRun assembles a run from its meta file and data directories.
func (s *Store) loadRun(experimentID, runID string) (*api.Run, error) {
	dir := s.runPath(experimentID, runID)
	var meta runMeta
	if err := readMeta(filepath.Join(dir, "meta.yaml"), &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
		}
		return nil, err
	}

	run := &api.Run{
		Info: api.RunInfo{
			RunID:          meta.RunID,
			RunName:        meta.RunName,
			ExperimentID:   meta.ExperimentID,
			Status:         api.RunStatus(meta.Status),
			StartTime:      meta.StartTime,
			EndTime:        meta.EndTime,
			ArtifactURI:    meta.ArtifactURI,
			LifecycleStage: api.LifecycleStage(meta.LifecycleStage),
		},
	}

	params, err := readKeyFiles(filepath.Join(dir, "params"))
	if err != nil {
		return nil, err
	}
	for _, kv := range params {
		run.Data.Params = append(run.Data.Params, api.Param{Key: kv[0], Value: kv[1]})
	}

	tags, err := readKeyFiles(filepath.Join(dir, "tags"))
	if err != nil {
		return nil, err
	}
	for _, kv := range tags {
		run.Data.Tags = append(run.Data.Tags, api.RunTag{Key: kv[0], Value: kv[1]})
	}

	metricsDir := filepath.Join(dir, "metrics")
	keys, err := listKeyFiles(metricsDir)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		history, err := readMetricFile(metricsDir, key)
		if err != nil {
			return nil, err
		}
		if len(history) > 0 {
			run.Data.Metrics = append(run.Data.Metrics, history[len(history)-1])
		}
	}
	return run, nil
}

// ---------------------------------------------------------------------------
// Run data
// ---------------------------------------------------------------------------

// keyFilePath maps a metric, param or tag key to a file below dir. Keys may
// contain slashes, which become subdirectories; the resolved path must stay
// inside dir.
func keyFilePath(dir, key string) (string, error) {
	if !api.ValidateKey(key) {
		return "", api.NewInvalidParameterError("invalid key %q", key)
	}
	path := filepath.Join(dir, filepath.FromSlash(key))
	if !strings.HasPrefix(path, dir+string(filepath.Separator)) {
		return "", api.NewInvalidParameterError("invalid key %q", key)
	}
	return path, nil
}

// listKeyFiles returns the keys stored below dir, slash-separated for
// nested files. A missing dir yields no keys.
func listKeyFiles(dir string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// readKeyFiles returns sorted key/value pairs from the files below dir.
func readKeyFiles(dir string) ([][2]string, error) {
	keys, err := listKeyFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([][2]string, 0, len(keys))
	for _, key := range keys {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
		if err != nil {
			return nil, err
		}
		out = append(out, [2]string{key, string(data)})
	}
	return out, nil
}

// readMetricFile parses a metric file of "timestamp value step" lines.
func readMetricFile(dir, key string) ([]api.Metric, error) {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []api.Metric
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metric %s: bad timestamp %q", key, fields[0])
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("metric %s: bad value %q", key, fields[1])
		}
		step, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metric %s: bad step %q", key, fields[2])
		}
		out = append(out, api.Metric{Key: key, Value: value, Timestamp: ts, Step: step})
	}
	return out, nil
}

func (s *Store) LogMetric(_ context.Context, runID string, m api.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID, err := s.findRun(runID)
	if err != nil {
		return err
	}
	return s.appendMetric(s.runPath(experimentID, runID), m)
}

func (s *Store) appendMetric(runDir string, m api.Metric) error {
	path, err := keyFilePath(filepath.Join(runDir, "metrics"), m.Key)
	if err != nil {
		return err
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	line := fmt.Sprintf("%d %s %d\n", m.Timestamp, strconv.FormatFloat(m.Value, 'g', -1, 64), m.Step)
	_, err = f.WriteString(line)
	return err
}

func (s *Store) LogParam(_ context.Context, runID string, p api.Param) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID, err := s.findRun(runID)
	if err != nil {
		return err
	}
	return s.writeParam(s.runPath(experimentID, runID), p)
}

func (s *Store) writeParam(runDir string, p api.Param) error {
	path, err := keyFilePath(filepath.Join(runDir, "params"), p.Key)
	if err != nil {
		return err
	}
	if existing, err := os.ReadFile(path); err == nil {
		if string(existing) == p.Value {
			return nil
		}
		return api.NewInvalidParameterError(
			"param %q already logged with value %q (new value %q)", p.Key, string(existing), p.Value)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(p.Value), 0o644)
}

func (s *Store) SetTag(_ context.Context, runID string, t api.RunTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID, err := s.findRun(runID)
	if err != nil {
		return err
	}
	dir := s.runPath(experimentID, runID)
	if err := s.writeTag(dir, t); err != nil {
		return err
	}
	if t.Key == api.TagRunName {
		path := filepath.Join(dir, "meta.yaml")
		var meta runMeta
		if err := readMeta(path, &meta); err != nil {
			return err
		}
		meta.RunName = t.Value
		return writeMeta(path, meta)
	}
	return nil
}

func (s *Store) writeTag(runDir string, t api.RunTag) error {
	path, err := keyFilePath(filepath.Join(runDir, "tags"), t.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(t.Value), 0o644)
}

func (s *Store) LogBatch(ctx context.Context, runID string, metrics []api.Metric, params []api.Param, tags []api.RunTag) error {
	if len(metrics)+len(params)+len(tags) > 1000 {
		return api.NewInvalidParameterError("batch of %d entries exceeds the limit of 1000",
			len(metrics)+len(params)+len(tags))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID, err := s.findRun(runID)
	if err != nil {
		return err
	}
	dir := s.runPath(experimentID, runID)
	for _, p := range params {
		if err := s.writeParam(dir, p); err != nil {
			return err
		}
	}
	for _, m := range metrics {
		if err := s.appendMetric(dir, m); err != nil {
			return err
		}
	}
	for _, t := range tags {
		if err := s.writeTag(dir, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetMetricHistory(_ context.Context, runID, key string) ([]api.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID, err := s.findRun(runID)
	if err != nil {
		return nil, err
	}
	if !api.ValidateKey(key) {
		return nil, api.NewInvalidParameterError("invalid key %q", key)
	}
	return readMetricFile(filepath.Join(s.runPath(experimentID, runID), "metrics"), key)
}

// ---------------------------------------------------------------------------
// Model registry
// ---------------------------------------------------------------------------

// modelPath maps a registered model name to its directory. Names become
// directory names as-is, so slashes are rejected.
func (s *Store) modelPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return "", api.NewInvalidParameterError("invalid registered model name %q", name)
	}
	return filepath.Join(s.root, modelsDir, name), nil
}

func (s *Store) CreateRegisteredModel(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.modelPath(name)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "meta.yaml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	meta := modelMeta{Name: name, CreationTimestamp: time.Now().UnixMilli()}
	return writeMeta(path, meta)
}

func (s *Store) CreateModelVersion(_ context.Context, name, source, runID string) (*api.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.modelPath(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, "meta.yaml")); err != nil {
		return nil, fmt.Errorf("%w: registered model %q", tracking.ErrNotFound, name)
	}

	next := 1
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if n, ok := strings.CutPrefix(e.Name(), "version-"); ok {
			if v, err := strconv.Atoi(n); err == nil && v >= next {
				next = v + 1
			}
		}
	}

	meta := versionMeta{
		Name:              name,
		Version:           strconv.Itoa(next),
		RunID:             runID,
		Source:            source,
		Status:            "READY",
		CreationTimestamp: time.Now().UnixMilli(),
	}
	if err := writeMeta(filepath.Join(dir, fmt.Sprintf("version-%d", next), "meta.yaml"), meta); err != nil {
		return nil, err
	}
	return &api.ModelVersion{
		Name:              meta.Name,
		Version:           meta.Version,
		RunID:             meta.RunID,
		Source:            meta.Source,
		Status:            meta.Status,
		CreationTimestamp: meta.CreationTimestamp,
	}, nil
}

func (s *Store) SearchModelVersions(_ context.Context, filter string) ([]*api.ModelVersion, error) {
	field, value, err := tracking.ParseVersionFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	models, err := os.ReadDir(filepath.Join(s.root, modelsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*api.ModelVersion
	for _, m := range models {
		if !m.IsDir() {
			continue
		}
		if field == "name" && m.Name() != value {
			continue
		}
		dir := filepath.Join(s.root, modelsDir, m.Name())
		versions, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			if !strings.HasPrefix(v.Name(), "version-") {
				continue
			}
			var meta versionMeta
			if err := readMeta(filepath.Join(dir, v.Name(), "meta.yaml"), &meta); err != nil {
				continue
			}
			if field == "run_id" && meta.RunID != value {
				continue
			}
			out = append(out, &api.ModelVersion{
				Name:              meta.Name,
				Version:           meta.Version,
				RunID:             meta.RunID,
				Source:            meta.Source,
				Status:            meta.Status,
				CreationTimestamp: meta.CreationTimestamp,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CreationTimestamp < out[j].CreationTimestamp
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

func (s *Store) artifactPath(runID, path string) (string, error) {
	experimentID, err := s.findRun(runID)
	if err != nil {
		return "", err
	}
	if path == "" || strings.Contains(path, "..") {
		return "", api.NewInvalidParameterError("invalid artifact path %q", path)
	}
	return filepath.Join(s.runPath(experimentID, runID), "artifacts", filepath.FromSlash(path)), nil
}

func (s *Store) UploadArtifact(_ context.Context, runID, path string, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst, err := s.artifactPath(runID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return nil
}

func (s *Store) DownloadArtifact(_ context.Context, runID, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.artifactPath(runID, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: artifact %s", tracking.ErrNotFound, path)
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) ListArtifacts(_ context.Context, runID, path string) ([]api.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID, err := s.findRun(runID)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.runPath(experimentID, runID), "artifacts")
	if path != "" {
		if strings.Contains(path, "..") {
			return nil, api.NewInvalidParameterError("invalid artifact path %q", path)
		}
		dir = filepath.Join(dir, filepath.FromSlash(path))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]api.FileInfo, 0, len(entries))
	for _, e := range entries {
		rel := e.Name()
		if path != "" {
			rel = path + "/" + rel
		}
		fi := api.FileInfo{Path: rel, IsDir: e.IsDir()}
		if !e.IsDir() {
			info, err := e.Info()
			if err != nil {
				return nil, err
			}
			fi.FileSize = info.Size()
		}
		out = append(out, fi)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("tracking root %q: %w", s.root, err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
