package observability

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// InstrumentStore wraps a tracking store to record request metrics.
//
// It captures:
//   - mlbridge_tracking_requests_total (counter): incremented per operation with op, backend, and status labels
//   - mlbridge_tracking_request_duration_seconds (histogram): operation duration with op and backend labels
//
// The backend label conventionally is the store's URI scheme ("memory",
// "file", "postgres", "http"). Close is passed through unrecorded.
func InstrumentStore(next tracking.Store, backend string) tracking.Store {
	return &instrumentedStore{next: next, backend: backend}
}

type instrumentedStore struct {
	next    tracking.Store
	backend string
}

// observe records one completed operation.
func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	TrackingRequestsTotal.WithLabelValues(op, s.backend, statusLabel(err)).Inc()
	TrackingRequestDuration.WithLabelValues(op, s.backend).Observe(time.Since(start).Seconds())
}

// statusLabel maps an operation outcome to a bounded status label, keeping
// the label space small regardless of error message contents.
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tracking.ErrNotFound):
		return "not_found"
	case errors.Is(err, tracking.ErrAlreadyExists):
		return "already_exists"
	default:
		return "error"
	}
}

func (s *instrumentedStore) CreateExperiment(ctx context.Context, name string) (string, error) {
	start := time.Now()
	id, err := s.next.CreateExperiment(ctx, name)
	s.observe("create_experiment", start, err)
	return id, err
}

func (s *instrumentedStore) GetExperimentByName(ctx context.Context, name string) (*api.Experiment, error) {
	start := time.Now()
	exp, err := s.next.GetExperimentByName(ctx, name)
	s.observe("get_experiment_by_name", start, err)
	return exp, err
}

func (s *instrumentedStore) RestoreExperiment(ctx context.Context, experimentID string) error {
	start := time.Now()
	err := s.next.RestoreExperiment(ctx, experimentID)
	s.observe("restore_experiment", start, err)
	return err
}

func (s *instrumentedStore) CreateRun(ctx context.Context, experimentID, name string, startTime int64, tags []api.RunTag) (*api.Run, error) {
	start := time.Now()
	run, err := s.next.CreateRun(ctx, experimentID, name, startTime, tags)
	s.observe("create_run", start, err)
	return run, err
}

func (s *instrumentedStore) GetRun(ctx context.Context, runID string) (*api.Run, error) {
	start := time.Now()
	run, err := s.next.GetRun(ctx, runID)
	s.observe("get_run", start, err)
	return run, err
}

func (s *instrumentedStore) UpdateRun(ctx context.Context, runID string, status api.RunStatus, endTime int64) error {
	start := time.Now()
	err := s.next.UpdateRun(ctx, runID, status, endTime)
	s.observe("update_run", start, err)
	return err
}

func (s *instrumentedStore) SearchRuns(ctx context.Context, experimentIDs []string, filter string, maxResults int) ([]*api.Run, error) {
	start := time.Now()
	runs, err := s.next.SearchRuns(ctx, experimentIDs, filter, maxResults)
	s.observe("search_runs", start, err)
	return runs, err
}

func (s *instrumentedStore) LogMetric(ctx context.Context, runID string, m api.Metric) error {
	start := time.Now()
	err := s.next.LogMetric(ctx, runID, m)
	s.observe("log_metric", start, err)
	return err
}

func (s *instrumentedStore) LogParam(ctx context.Context, runID string, p api.Param) error {
	start := time.Now()
	err := s.next.LogParam(ctx, runID, p)
	s.observe("log_param", start, err)
	return err
}

func (s *instrumentedStore) SetTag(ctx context.Context, runID string, t api.RunTag) error {
	start := time.Now()
	err := s.next.SetTag(ctx, runID, t)
	s.observe("set_tag", start, err)
	return err
}

func (s *instrumentedStore) LogBatch(ctx context.Context, runID string, metrics []api.Metric, params []api.Param, tags []api.RunTag) error {
	start := time.Now()
	err := s.next.LogBatch(ctx, runID, metrics, params, tags)
	s.observe("log_batch", start, err)
	return err
}

func (s *instrumentedStore) GetMetricHistory(ctx context.Context, runID, key string) ([]api.Metric, error) {
	start := time.Now()
	history, err := s.next.GetMetricHistory(ctx, runID, key)
	s.observe("get_metric_history", start, err)
	return history, err
}

func (s *instrumentedStore) CreateRegisteredModel(ctx context.Context, name string) error {
	start := time.Now()
	err := s.next.CreateRegisteredModel(ctx, name)
	s.observe("create_registered_model", start, err)
	return err
}

func (s *instrumentedStore) CreateModelVersion(ctx context.Context, name, source, runID string) (*api.ModelVersion, error) {
	start := time.Now()
	mv, err := s.next.CreateModelVersion(ctx, name, source, runID)
	s.observe("create_model_version", start, err)
	return mv, err
}

func (s *instrumentedStore) SearchModelVersions(ctx context.Context, filter string) ([]*api.ModelVersion, error) {
	start := time.Now()
	versions, err := s.next.SearchModelVersions(ctx, filter)
	s.observe("search_model_versions", start, err)
	return versions, err
}

func (s *instrumentedStore) UploadArtifact(ctx context.Context, runID, path string, r io.Reader) error {
	start := time.Now()
	err := s.next.UploadArtifact(ctx, runID, path, r)
	s.observe("upload_artifact", start, err)
	return err
}

func (s *instrumentedStore) DownloadArtifact(ctx context.Context, runID, path string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.next.DownloadArtifact(ctx, runID, path)
	s.observe("download_artifact", start, err)
	return rc, err
}

func (s *instrumentedStore) ListArtifacts(ctx context.Context, runID, path string) ([]api.FileInfo, error) {
	start := time.Now()
	infos, err := s.next.ListArtifacts(ctx, runID, path)
	s.observe("list_artifacts", start, err)
	return infos, err
}

func (s *instrumentedStore) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := s.next.HealthCheck(ctx)
	s.observe("health_check", start, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}

// Unwrap returns the wrapped store, letting callers reach backend-specific
// functionality behind the decorator.
func (s *instrumentedStore) Unwrap() tracking.Store {
	return s.next
}
