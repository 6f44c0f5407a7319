package tracking

import (
	"context"
	"io"

	"github.com/mlbridge-io/mlbridge/pkg/api"
)

// Store abstracts a tracking backend. Implementations exist for in-memory
// state, the local mlruns file layout, PostgreSQL, and remote REST servers.
//
// All methods return ErrNotFound and ErrAlreadyExists for the corresponding
// conditions so callers can branch with errors.Is regardless of the backend.
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// CreateExperiment creates a named experiment and returns its ID.
	// The name must be unique among non-deleted experiments.
	CreateExperiment(ctx context.Context, name string) (string, error)

	// GetExperimentByName returns the experiment with the given name,
	// including soft-deleted ones (callers check LifecycleStage).
	GetExperimentByName(ctx context.Context, name string) (*api.Experiment, error)

	// RestoreExperiment moves a soft-deleted experiment back to the active
	// lifecycle stage.
	RestoreExperiment(ctx context.Context, experimentID string) error

	// CreateRun starts a new run in an experiment. startTime is in
	// milliseconds since the Unix epoch; zero means now.
	CreateRun(ctx context.Context, experimentID, name string, startTime int64, tags []api.RunTag) (*api.Run, error)

	// GetRun returns a run with its full logged data.
	GetRun(ctx context.Context, runID string) (*api.Run, error)

	// UpdateRun sets the status and, when endTime is non-zero, the end time
	// of a run.
	UpdateRun(ctx context.Context, runID string, status api.RunStatus, endTime int64) error

	// SearchRuns returns the runs of the given experiments matching a
	// filter expression (see ParseFilter for the supported grammar), newest
	// first. maxResults <= 0 means no limit.
	SearchRuns(ctx context.Context, experimentIDs []string, filter string, maxResults int) ([]*api.Run, error)

	// LogMetric appends one metric point to a run's history.
	LogMetric(ctx context.Context, runID string, m api.Metric) error

	// LogParam logs a parameter. Params are write-once: logging an existing
	// key with a different value fails, the same value is a no-op.
	LogParam(ctx context.Context, runID string, p api.Param) error

	// SetTag sets a run tag, overwriting any previous value.
	SetTag(ctx context.Context, runID string, t api.RunTag) error

	// LogBatch logs metrics, params, and tags in one call.
	LogBatch(ctx context.Context, runID string, metrics []api.Metric, params []api.Param, tags []api.RunTag) error

	// GetMetricHistory returns all logged points of one metric in log order.
	GetMetricHistory(ctx context.Context, runID, key string) ([]api.Metric, error)

	// CreateRegisteredModel creates a model registry entry. Creating a name
	// that already exists is not an error.
	CreateRegisteredModel(ctx context.Context, name string) error

	// CreateModelVersion adds a version to a registered model. Source
	// conventionally is "runs:/<run_id>/<artifact_path>".
	CreateModelVersion(ctx context.Context, name, source, runID string) (*api.ModelVersion, error)

	// SearchModelVersions returns model versions matching a filter such as
	// "name = 'my-model'" or "run_id = '<id>'". An empty filter returns all.
	SearchModelVersions(ctx context.Context, filter string) ([]*api.ModelVersion, error)

	// UploadArtifact stores an artifact file under the run's artifact root.
	UploadArtifact(ctx context.Context, runID, path string, r io.Reader) error

	// DownloadArtifact opens an artifact file of a run. The caller closes
	// the reader.
	DownloadArtifact(ctx context.Context, runID, path string) (io.ReadCloser, error)

	// ListArtifacts lists artifact files of a run below path ("" for the
	// artifact root).
	ListArtifacts(ctx context.Context, runID, path string) ([]api.FileInfo, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
