package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// Artifact file names of a logged model.
const (
	mlmodelFile  = "MLmodel"
	modelBinFile = "model.bin"
)

// Model is a serialized model artifact with its metadata.
type Model struct {
	Flavor   string
	Data     []byte
	Metadata map[string]string
}

// mlmodelSpec is the MLmodel metadata file stored next to the model binary.
type mlmodelSpec struct {
	Flavor         string            `yaml:"flavor"`
	RunID          string            `yaml:"run_id"`
	UTCTimeCreated string            `yaml:"utc_time_created"`
	Metadata       map[string]string `yaml:"metadata,omitempty"`
}

// ModelLoggerConfig configures a ModelLoggerDataSet.
type ModelLoggerConfig struct {
	// Flavor names the serialization format of the model payload.
	Flavor string

	// ArtifactPath is the run-relative directory the model is stored
	// under. Defaults to "model".
	ArtifactPath string

	// RegisteredModelName, when set, registers every saved model under
	// this name in the model registry.
	RegisteredModelName string

	// RunID pins the dataset to one run. Empty follows the active run.
	RunID string
}

// ModelLoggerDataSet stores a serialized model as run artifacts: the model
// bytes under "<artifact_path>/model.bin" and an MLmodel metadata file next
// to them. With a registered model name configured, each save also creates a
// model version pointing at the run's artifacts.
type ModelLoggerDataSet struct {
	base
	flavor              string
	artifactPath        string
	registeredModelName string
}

var _ DataSet = (*ModelLoggerDataSet)(nil)

func init() {
	RegisterType("model_logger", func(sess *tracking.Session, cfg map[string]any) (DataSet, error) {
		return NewModelLogger(sess, ModelLoggerConfig{
			Flavor:              stringOpt(cfg, "flavor"),
			ArtifactPath:        stringOpt(cfg, "artifact_path"),
			RegisteredModelName: stringOpt(mapOpt(cfg, "save_args"), "registered_model_name"),
			RunID:               stringOpt(cfg, "run_id"),
		})
	})
}

// NewModelLogger creates a ModelLoggerDataSet.
func NewModelLogger(sess *tracking.Session, cfg ModelLoggerConfig) (*ModelLoggerDataSet, error) {
	if cfg.ArtifactPath == "" {
		cfg.ArtifactPath = "model"
	}
	return &ModelLoggerDataSet{
		base:                base{sess: sess, runID: cfg.RunID},
		flavor:              cfg.Flavor,
		artifactPath:        cfg.ArtifactPath,
		registeredModelName: cfg.RegisteredModelName,
	}, nil
}

// RegisteredModelName returns the configured registry name, empty when the
// dataset does not register versions.
func (d *ModelLoggerDataSet) RegisteredModelName() string { return d.registeredModelName }

// ModelURI returns the "runs:/<run>/<path>" URI of the stored model.
func (d *ModelLoggerDataSet) ModelURI() (string, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("runs:/%s/%s", runID, d.artifactPath), nil
}

// Save stores the model artifacts and, when configured, registers a model
// version. The payload is a *Model or raw []byte.
func (d *ModelLoggerDataSet) Save(ctx context.Context, value any) error {
	if !d.LoggingActive() {
		return nil
	}
	var model *Model
	switch v := value.(type) {
	case *Model:
		model = v
	case []byte:
		model = &Model{Flavor: d.flavor, Data: v}
	default:
		return opErr("save", "model_logger", api.NewInvalidParameterError(
			"unsupported payload type %T (want *Model or []byte)", value))
	}
	if model.Flavor == "" {
		model.Flavor = d.flavor
	}
	if d.flavor != "" && model.Flavor != d.flavor {
		return opErr("save", "model_logger", api.NewInvalidParameterError(
			"model flavor %q does not match dataset flavor %q", model.Flavor, d.flavor))
	}

	runID, err := d.saveRun()
	if err != nil {
		return opErr("save", "model_logger", err)
	}

	spec := mlmodelSpec{
		Flavor:         model.Flavor,
		RunID:          runID,
		UTCTimeCreated: time.Now().UTC().Format("2006-01-02 15:04:05.000000"),
		Metadata:       model.Metadata,
	}
	meta, err := yaml.Marshal(spec)
	if err != nil {
		return opErr("save", "model_logger", fmt.Errorf("encoding MLmodel: %w", err))
	}

	store := d.store()
	if err := store.UploadArtifact(ctx, runID, d.artifactPath+"/"+mlmodelFile, bytes.NewReader(meta)); err != nil {
		return opErr("save", "model_logger", fmt.Errorf("uploading MLmodel: %w", err))
	}
	if err := store.UploadArtifact(ctx, runID, d.artifactPath+"/"+modelBinFile, bytes.NewReader(model.Data)); err != nil {
		return opErr("save", "model_logger", fmt.Errorf("uploading model data: %w", err))
	}

	if d.registeredModelName != "" {
		if err := d.register(ctx, runID); err != nil {
			return opErr("save", "model_logger", err)
		}
	}
	return nil
}

// saveRun resolves the run to save into. A pinned run ID is rejected while a
// different run is active: logging would silently target a run the pipeline
// is not working in.
func (d *ModelLoggerDataSet) saveRun() (string, error) {
	if d.runID != "" && d.sess != nil {
		if active := d.sess.ActiveRun(); active != nil && active.ID() != d.runID {
			return "", api.NewInvalidStateError(
				"run_id %s conflicts with the active run %s", d.runID, active.ID())
		}
	}
	return d.resolveRun()
}

func (d *ModelLoggerDataSet) register(ctx context.Context, runID string) error {
	store := d.store()
	if err := store.CreateRegisteredModel(ctx, d.registeredModelName); err != nil {
		return fmt.Errorf("registering model %q: %w", d.registeredModelName, err)
	}
	source := fmt.Sprintf("runs:/%s/%s", runID, d.artifactPath)
	if _, err := store.CreateModelVersion(ctx, d.registeredModelName, source, runID); err != nil {
		return fmt.Errorf("creating version of model %q: %w", d.registeredModelName, err)
	}
	return nil
}

// Load downloads the stored model.
func (d *ModelLoggerDataSet) Load(ctx context.Context) (any, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return nil, opErr("load", "model_logger", err)
	}
	store := d.store()

	meta, err := readArtifact(ctx, store, runID, d.artifactPath+"/"+mlmodelFile)
	if err != nil {
		return nil, opErr("load", "model_logger", fmt.Errorf("reading MLmodel: %w", err))
	}
	var spec mlmodelSpec
	if err := yaml.Unmarshal(meta, &spec); err != nil {
		return nil, opErr("load", "model_logger", fmt.Errorf("decoding MLmodel: %w", err))
	}
	if d.flavor != "" && spec.Flavor != "" && spec.Flavor != d.flavor {
		return nil, opErr("load", "model_logger", api.NewInvalidParameterError(
			"stored model flavor %q does not match dataset flavor %q", spec.Flavor, d.flavor))
	}

	data, err := readArtifact(ctx, store, runID, d.artifactPath+"/"+modelBinFile)
	if err != nil {
		return nil, opErr("load", "model_logger", fmt.Errorf("reading model data: %w", err))
	}
	return &Model{Flavor: spec.Flavor, Data: data, Metadata: spec.Metadata}, nil
}

// Exists reports whether the run has model artifacts at the artifact path.
func (d *ModelLoggerDataSet) Exists(ctx context.Context) (bool, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return false, opErr("exists", "model_logger", err)
	}
	files, err := d.store().ListArtifacts(ctx, runID, d.artifactPath)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return false, nil
		}
		return false, opErr("exists", "model_logger", err)
	}
	return len(files) > 0, nil
}

// Describe returns the dataset configuration.
func (d *ModelLoggerDataSet) Describe() map[string]any {
	return map[string]any{
		"type":                  "model_logger",
		"flavor":                d.flavor,
		"artifact_path":         d.artifactPath,
		"registered_model_name": d.registeredModelName,
		"run_id":                d.runID,
	}
}

func readArtifact(ctx context.Context, store tracking.Store, runID, path string) ([]byte, error) {
	rc, err := store.DownloadArtifact(ctx, runID, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
