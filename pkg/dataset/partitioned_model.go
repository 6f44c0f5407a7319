package dataset

import (
	"fmt"

	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// PartitionedModelLoggerConfig configures a partitioned model logger.
type PartitionedModelLoggerConfig struct {
	// DataSet is the inner model-logger configuration. The "type" key is
	// preset; everything else (flavor, artifact_path, save_args) is passed
	// through.
	DataSet map[string]any

	// RunID anchors child runs under an explicit parent run.
	RunID string
}

func init() {
	RegisterType("partitioned_model_logger", func(sess *tracking.Session, cfg map[string]any) (DataSet, error) {
		return NewPartitionedModelLogger(sess, PartitionedModelLoggerConfig{
			DataSet: mapOpt(cfg, "data_set"),
			RunID:   stringOpt(cfg, "run_id"),
		})
	})
}

// NewPartitionedModelLogger creates a PartitionedDataSet preset to a
// model-logger inner dataset whose registered model name is dynamic: saving
// partition "store_1" with registered_model_name "test" registers the model
// `store_1\test`. The inner configuration is validated up front by building
// a probe child dataset.
func NewPartitionedModelLogger(sess *tracking.Session, cfg PartitionedModelLoggerConfig) (*PartitionedDataSet, error) {
	inner := map[string]any{"type": "model_logger"}
	for k, v := range cfg.DataSet {
		inner[k] = v
	}

	p, err := NewPartitioned(sess, PartitionedConfig{
		DataSet:       inner,
		RunID:         cfg.RunID,
		DynamicParams: []string{"save_args.registered_model_name"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.childDataSet("check", nil); err != nil {
		return nil, fmt.Errorf("invalid inner model logger config: %w", err)
	}
	return p, nil
}
