package api

// ---------------------------------------------------------------------------
// Experiments
// ---------------------------------------------------------------------------

// LifecycleStage represents the lifecycle stage of an experiment or run.
type LifecycleStage string

const (
	LifecycleStageActive  LifecycleStage = "active"
	LifecycleStageDeleted LifecycleStage = "deleted"
)

// Experiment is a named container of runs.
type Experiment struct {
	ExperimentID     string          `json:"experiment_id"`
	Name             string          `json:"name"`
	ArtifactLocation string          `json:"artifact_location,omitempty"`
	LifecycleStage   LifecycleStage  `json:"lifecycle_stage"`
	CreationTime     int64           `json:"creation_time,omitempty"`
	LastUpdateTime   int64           `json:"last_update_time,omitempty"`
	Tags             []ExperimentTag `json:"tags,omitempty"`
}

// ExperimentTag is a key/value tag attached to an experiment.
type ExperimentTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// RunStatus represents the execution status of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusScheduled RunStatus = "SCHEDULED"
	RunStatusFinished  RunStatus = "FINISHED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusKilled    RunStatus = "KILLED"
)

// Terminal reports whether the status is a final one.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusFinished, RunStatusFailed, RunStatusKilled:
		return true
	}
	return false
}

// Run is a single tracked execution.
type Run struct {
	Info RunInfo `json:"info"`
	Data RunData `json:"data"`
}

// RunInfo holds the metadata of a run.
type RunInfo struct {
	RunID          string         `json:"run_id"`
	RunName        string         `json:"run_name,omitempty"`
	ExperimentID   string         `json:"experiment_id"`
	Status         RunStatus      `json:"status"`
	StartTime      int64          `json:"start_time,omitempty"`
	EndTime        int64          `json:"end_time,omitempty"`
	ArtifactURI    string         `json:"artifact_uri,omitempty"`
	LifecycleStage LifecycleStage `json:"lifecycle_stage,omitempty"`
}

// RunData holds the logged content of a run.
type RunData struct {
	Metrics []Metric `json:"metrics,omitempty"`
	Params  []Param  `json:"params,omitempty"`
	Tags    []RunTag `json:"tags,omitempty"`
}

// Tag returns the value of the named run tag and whether it is set.
func (d RunData) Tag(key string) (string, bool) {
	for _, t := range d.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Metric is one logged metric point. Timestamp is in milliseconds since the
// Unix epoch.
type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step,omitempty"`
}

// Param is one logged parameter. Params are write-once per run: logging the
// same key with a different value is rejected by tracking servers.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RunTag is a key/value tag attached to a run.
type RunTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Well-known run tag names of the tracking protocol.
const (
	TagParentRunID = "mlflow.parentRunId"
	TagRunName     = "mlflow.runName"
	TagUser        = "mlflow.user"
	TagSourceName  = "mlflow.source.name"
)

// ---------------------------------------------------------------------------
// Model registry
// ---------------------------------------------------------------------------

// RegisteredModel is a named entry in the model registry.
type RegisteredModel struct {
	Name                 string `json:"name"`
	CreationTimestamp    int64  `json:"creation_timestamp,omitempty"`
	LastUpdatedTimestamp int64  `json:"last_updated_timestamp,omitempty"`
	Description          string `json:"description,omitempty"`
}

// ModelVersion is one version of a registered model. Source points at the
// logged model artifacts, conventionally "runs:/<run_id>/<artifact_path>".
type ModelVersion struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	RunID             string `json:"run_id,omitempty"`
	Source            string `json:"source,omitempty"`
	Status            string `json:"status,omitempty"`
	CreationTimestamp int64  `json:"creation_timestamp,omitempty"`
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// FileInfo describes one artifact file or directory of a run.
type FileInfo struct {
	Path     string `json:"path"`
	IsDir    bool   `json:"is_dir"`
	FileSize int64  `json:"file_size,omitempty"`
}
