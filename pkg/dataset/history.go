package dataset

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// MetricHistoryConfig configures a MetricHistoryDataSet.
type MetricHistoryConfig struct {
	// Key is the metric name. Required.
	Key string

	// RunID pins the dataset to one run. Empty follows the active run.
	RunID string
}

// MetricHistoryDataSet logs a whole metric series in one save. It accepts a
// []float64 (logged at steps 0..n-1) or a []Point with explicit steps; Load
// returns the values in step order.
type MetricHistoryDataSet struct {
	base
	key string
}

var _ DataSet = (*MetricHistoryDataSet)(nil)

func init() {
	RegisterType("metric_history", func(sess *tracking.Session, cfg map[string]any) (DataSet, error) {
		return NewMetricHistory(sess, MetricHistoryConfig{
			Key:   stringOpt(cfg, "key"),
			RunID: stringOpt(cfg, "run_id"),
		})
	})
}

// NewMetricHistory creates a MetricHistoryDataSet.
func NewMetricHistory(sess *tracking.Session, cfg MetricHistoryConfig) (*MetricHistoryDataSet, error) {
	if cfg.Key == "" {
		return nil, api.NewInvalidParameterError("metric history dataset requires a key")
	}
	if !api.ValidateKey(cfg.Key) {
		return nil, api.NewInvalidParameterError("invalid metric key %q", cfg.Key)
	}
	return &MetricHistoryDataSet{
		base: base{sess: sess, runID: cfg.RunID},
		key:  cfg.Key,
	}, nil
}

// Save logs the full series as one batch.
func (d *MetricHistoryDataSet) Save(ctx context.Context, value any) error {
	if !d.LoggingActive() {
		return nil
	}
	var points []Point
	switch v := value.(type) {
	case []float64:
		points = make([]Point, len(v))
		for i, val := range v {
			points[i] = Point{Value: val, Step: int64(i)}
		}
	case []Point:
		points = v
	default:
		return opErr("save", "metric_history", api.NewInvalidParameterError(
			"metric %q: unsupported payload type %T (want []float64 or []Point)", d.key, value))
	}

	runID, err := d.resolveRun()
	if err != nil {
		return opErr("save", "metric_history", err)
	}
	now := time.Now().UnixMilli()
	metrics := make([]api.Metric, len(points))
	for i, p := range points {
		metrics[i] = api.Metric{Key: d.key, Value: p.Value, Timestamp: now, Step: p.Step}
	}
	if err := d.store().LogBatch(ctx, runID, metrics, nil, nil); err != nil {
		return opErr("save", "metric_history", fmt.Errorf("logging metric %q: %w", d.key, err))
	}
	return nil
}

// Load returns the metric values ordered by step as a []float64.
func (d *MetricHistoryDataSet) Load(ctx context.Context) (any, error) {
	points, err := d.history(ctx)
	if err != nil {
		return nil, opErr("load", "metric_history", err)
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values, nil
}

// LoadHistory returns the full series ordered by step.
func (d *MetricHistoryDataSet) LoadHistory(ctx context.Context) ([]Point, error) {
	points, err := d.history(ctx)
	if err != nil {
		return nil, opErr("load", "metric_history", err)
	}
	return points, nil
}

func (d *MetricHistoryDataSet) history(ctx context.Context) ([]Point, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return nil, err
	}
	history, err := d.store().GetMetricHistory(ctx, runID, d.key)
	if err != nil {
		return nil, err
	}
	points := make([]Point, len(history))
	for i, m := range history {
		points[i] = Point{Value: m.Value, Step: m.Step}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Step < points[j].Step })
	return points, nil
}

// Exists reports whether the metric has any logged points.
func (d *MetricHistoryDataSet) Exists(ctx context.Context) (bool, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return false, opErr("exists", "metric_history", err)
	}
	history, err := d.store().GetMetricHistory(ctx, runID, d.key)
	if err != nil {
		return false, opErr("exists", "metric_history", err)
	}
	return len(history) > 0, nil
}

// Describe returns the dataset configuration.
func (d *MetricHistoryDataSet) Describe() map[string]any {
	return map[string]any{
		"type":   "metric_history",
		"key":    d.key,
		"run_id": d.runID,
	}
}
