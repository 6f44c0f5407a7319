package api

// Request and response envelopes of the MLflow REST API 2.0. Field names
// follow the protocol's snake_case convention.

// GetExperimentByNameResponse is returned by experiments/get-by-name.
type GetExperimentByNameResponse struct {
	Experiment *Experiment `json:"experiment"`
}

// CreateExperimentRequest creates a new experiment.
type CreateExperimentRequest struct {
	Name             string          `json:"name"`
	ArtifactLocation string          `json:"artifact_location,omitempty"`
	Tags             []ExperimentTag `json:"tags,omitempty"`
}

// CreateExperimentResponse is returned by experiments/create.
type CreateExperimentResponse struct {
	ExperimentID string `json:"experiment_id"`
}

// RestoreExperimentRequest restores a soft-deleted experiment.
type RestoreExperimentRequest struct {
	ExperimentID string `json:"experiment_id"`
}

// CreateRunRequest creates a new run in an experiment.
type CreateRunRequest struct {
	ExperimentID string   `json:"experiment_id"`
	UserID       string   `json:"user_id,omitempty"`
	RunName      string   `json:"run_name,omitempty"`
	StartTime    int64    `json:"start_time,omitempty"`
	Tags         []RunTag `json:"tags,omitempty"`
}

// CreateRunResponse is returned by runs/create.
type CreateRunResponse struct {
	Run *Run `json:"run"`
}

// GetRunResponse is returned by runs/get.
type GetRunResponse struct {
	Run *Run `json:"run"`
}

// UpdateRunRequest updates the status, end time, or name of a run.
type UpdateRunRequest struct {
	RunID   string    `json:"run_id"`
	Status  RunStatus `json:"status,omitempty"`
	EndTime int64     `json:"end_time,omitempty"`
	RunName string    `json:"run_name,omitempty"`
}

// UpdateRunResponse is returned by runs/update.
type UpdateRunResponse struct {
	RunInfo *RunInfo `json:"run_info"`
}

// SearchRunsRequest searches runs across experiments with a filter
// expression such as "tags.`mlflow.parentRunId` = 'abc123'".
type SearchRunsRequest struct {
	ExperimentIDs []string `json:"experiment_ids"`
	Filter        string   `json:"filter,omitempty"`
	MaxResults    int      `json:"max_results,omitempty"`
	OrderBy       []string `json:"order_by,omitempty"`
	PageToken     string   `json:"page_token,omitempty"`
}

// SearchRunsResponse is returned by runs/search.
type SearchRunsResponse struct {
	Runs          []*Run `json:"runs,omitempty"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

// LogMetricRequest logs one metric point to a run.
type LogMetricRequest struct {
	RunID     string  `json:"run_id"`
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step,omitempty"`
}

// LogParamRequest logs one parameter to a run.
type LogParamRequest struct {
	RunID string `json:"run_id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetTagRequest sets one tag on a run.
type SetTagRequest struct {
	RunID string `json:"run_id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LogBatchRequest logs metrics, params, and tags in a single call. The
// protocol caps a batch at 1000 entries total.
type LogBatchRequest struct {
	RunID   string   `json:"run_id"`
	Metrics []Metric `json:"metrics,omitempty"`
	Params  []Param  `json:"params,omitempty"`
	Tags    []RunTag `json:"tags,omitempty"`
}

// GetMetricHistoryResponse is returned by metrics/get-history.
type GetMetricHistoryResponse struct {
	Metrics []Metric `json:"metrics,omitempty"`
}

// CreateRegisteredModelRequest creates a named model registry entry.
type CreateRegisteredModelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateRegisteredModelResponse is returned by registered-models/create.
type CreateRegisteredModelResponse struct {
	RegisteredModel *RegisteredModel `json:"registered_model"`
}

// CreateModelVersionRequest creates a new version of a registered model.
type CreateModelVersionRequest struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
	RunID  string `json:"run_id,omitempty"`
}

// CreateModelVersionResponse is returned by model-versions/create.
type CreateModelVersionResponse struct {
	ModelVersion *ModelVersion `json:"model_version"`
}

// SearchModelVersionsResponse is returned by model-versions/search.
type SearchModelVersionsResponse struct {
	ModelVersions []*ModelVersion `json:"model_versions,omitempty"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

// ListArtifactsResponse is returned by the artifact listing endpoint.
type ListArtifactsResponse struct {
	RootURI string     `json:"root_uri,omitempty"`
	Files   []FileInfo `json:"files,omitempty"`
}
