package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// Point is one metric observation.
type Point struct {
	Value float64
	Step  int64
}

// MetricConfig configures a MetricDataSet.
type MetricConfig struct {
	// Key is the metric name. Required.
	Key string

	// RunID pins the dataset to one run. Empty follows the active run.
	RunID string
}

// MetricDataSet logs a single scalar metric. Save accepts a float64 (logged
// at step 0) or a Point; Load returns the latest logged value.
type MetricDataSet struct {
	base
	key string
}

var _ DataSet = (*MetricDataSet)(nil)

func init() {
	RegisterType("metric", func(sess *tracking.Session, cfg map[string]any) (DataSet, error) {
		return NewMetric(sess, MetricConfig{
			Key:   stringOpt(cfg, "key"),
			RunID: stringOpt(cfg, "run_id"),
		})
	})
}

// NewMetric creates a MetricDataSet.
func NewMetric(sess *tracking.Session, cfg MetricConfig) (*MetricDataSet, error) {
	if cfg.Key == "" {
		return nil, api.NewInvalidParameterError("metric dataset requires a key")
	}
	if !api.ValidateKey(cfg.Key) {
		return nil, api.NewInvalidParameterError("invalid metric key %q", cfg.Key)
	}
	return &MetricDataSet{
		base: base{sess: sess, runID: cfg.RunID},
		key:  cfg.Key,
	}, nil
}

// Key returns the metric name.
func (d *MetricDataSet) Key() string { return d.key }

// Save logs one metric point.
func (d *MetricDataSet) Save(ctx context.Context, value any) error {
	if !d.LoggingActive() {
		return nil
	}
	var point Point
	switch v := value.(type) {
	case float64:
		point = Point{Value: v}
	case int:
		point = Point{Value: float64(v)}
	case Point:
		point = v
	default:
		return opErr("save", "metric", api.NewInvalidParameterError(
			"metric %q: unsupported payload type %T (want float64 or Point)", d.key, value))
	}

	runID, err := d.resolveRun()
	if err != nil {
		return opErr("save", "metric", err)
	}
	err = d.store().LogMetric(ctx, runID, api.Metric{
		Key:       d.key,
		Value:     point.Value,
		Timestamp: time.Now().UnixMilli(),
		Step:      point.Step,
	})
	if err != nil {
		return opErr("save", "metric", fmt.Errorf("logging metric %q: %w", d.key, err))
	}
	return nil
}

// Load returns the latest logged value of the metric as a float64.
func (d *MetricDataSet) Load(ctx context.Context) (any, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return nil, opErr("load", "metric", err)
	}
	run, err := d.store().GetRun(ctx, runID)
	if err != nil {
		return nil, opErr("load", "metric", err)
	}
	for _, m := range run.Data.Metrics {
		if m.Key == d.key {
			return m.Value, nil
		}
	}
	return nil, opErr("load", "metric", fmt.Errorf(
		"metric %q in run %s: %w", d.key, runID, tracking.ErrNotFound))
}

// LoadHistory returns every logged point of the metric in log order.
func (d *MetricDataSet) LoadHistory(ctx context.Context) ([]Point, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return nil, opErr("load", "metric", err)
	}
	history, err := d.store().GetMetricHistory(ctx, runID, d.key)
	if err != nil {
		return nil, opErr("load", "metric", err)
	}
	points := make([]Point, len(history))
	for i, m := range history {
		points[i] = Point{Value: m.Value, Step: m.Step}
	}
	return points, nil
}

// Exists reports whether the metric has been logged in the resolved run.
func (d *MetricDataSet) Exists(ctx context.Context) (bool, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return false, opErr("exists", "metric", err)
	}
	run, err := d.store().GetRun(ctx, runID)
	if err != nil {
		return false, opErr("exists", "metric", err)
	}
	for _, m := range run.Data.Metrics {
		if m.Key == d.key {
			return true, nil
		}
	}
	return false, nil
}

// Describe returns the dataset configuration.
func (d *MetricDataSet) Describe() map[string]any {
	return map[string]any{
		"type":   "metric",
		"key":    d.key,
		"run_id": d.runID,
	}
}
