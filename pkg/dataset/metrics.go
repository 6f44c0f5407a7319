package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// MetricsConfig configures a MetricsDataSet.
type MetricsConfig struct {
	// Prefix is prepended to every metric key as "<prefix>.<key>". Empty
	// logs keys as given.
	Prefix string

	// RunID pins the dataset to one run. Empty follows the active run.
	RunID string
}

// MetricsDataSet logs a map of metrics in one save. Values may be float64,
// Point, or []Point per key. Load reassembles the map from the run's metric
// histories: a single logged point becomes a Point, several become a
// []Point. Loaded keys carry the prefix as stored.
type MetricsDataSet struct {
	base
	prefix string
}

var _ DataSet = (*MetricsDataSet)(nil)

func init() {
	RegisterType("metrics", func(sess *tracking.Session, cfg map[string]any) (DataSet, error) {
		return NewMetrics(sess, MetricsConfig{
			Prefix: stringOpt(cfg, "prefix"),
			RunID:  stringOpt(cfg, "run_id"),
		}), nil
	})
}

// NewMetrics creates a MetricsDataSet.
func NewMetrics(sess *tracking.Session, cfg MetricsConfig) *MetricsDataSet {
	return &MetricsDataSet{
		base:   base{sess: sess, runID: cfg.RunID},
		prefix: cfg.Prefix,
	}
}

func (d *MetricsDataSet) metricKey(key string) string {
	if d.prefix == "" {
		return key
	}
	return d.prefix + "." + key
}

func (d *MetricsDataSet) ownsKey(key string) bool {
	return d.prefix == "" || strings.HasPrefix(key, d.prefix)
}

// Save logs every entry of a map[string]any of metric values.
func (d *MetricsDataSet) Save(ctx context.Context, value any) error {
	if !d.LoggingActive() {
		return nil
	}
	data, ok := value.(map[string]any)
	if !ok {
		return opErr("save", "metrics", api.NewInvalidParameterError(
			"unsupported payload type %T (want map[string]any)", value))
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now().UnixMilli()
	var metrics []api.Metric
	for _, key := range keys {
		full := d.metricKey(key)
		switch v := data[key].(type) {
		case float64:
			metrics = append(metrics, api.Metric{Key: full, Value: v, Timestamp: now})
		case int:
			metrics = append(metrics, api.Metric{Key: full, Value: float64(v), Timestamp: now})
		case Point:
			metrics = append(metrics, api.Metric{Key: full, Value: v.Value, Timestamp: now, Step: v.Step})
		case []Point:
			for _, p := range v {
				metrics = append(metrics, api.Metric{Key: full, Value: p.Value, Timestamp: now, Step: p.Step})
			}
		default:
			return opErr("save", "metrics", api.NewInvalidParameterError(
				"metric %q: unsupported value type %T (want float64, Point, or []Point)", key, data[key]))
		}
	}

	runID, err := d.resolveRun()
	if err != nil {
		return opErr("save", "metrics", err)
	}
	if err := d.store().LogBatch(ctx, runID, metrics, nil, nil); err != nil {
		return opErr("save", "metrics", fmt.Errorf("logging %d metrics: %w", len(metrics), err))
	}
	return nil
}

// Load returns a map of the run's metrics owned by this dataset.
func (d *MetricsDataSet) Load(ctx context.Context) (any, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return nil, opErr("load", "metrics", err)
	}
	keys, err := d.listKeys(ctx, runID)
	if err != nil {
		return nil, opErr("load", "metrics", err)
	}

	result := make(map[string]any, len(keys))
	for _, key := range keys {
		history, err := d.store().GetMetricHistory(ctx, runID, key)
		if err != nil {
			return nil, opErr("load", "metrics", err)
		}
		points := make([]Point, len(history))
		for i, m := range history {
			points[i] = Point{Value: m.Value, Step: m.Step}
		}
		if len(points) == 1 {
			result[key] = points[0]
		} else {
			result[key] = points
		}
	}
	return result, nil
}

// Exists reports whether the run has any metric owned by this dataset.
func (d *MetricsDataSet) Exists(ctx context.Context) (bool, error) {
	runID, err := d.resolveRun()
	if err != nil {
		return false, opErr("exists", "metrics", err)
	}
	keys, err := d.listKeys(ctx, runID)
	if err != nil {
		return false, opErr("exists", "metrics", err)
	}
	return len(keys) > 0, nil
}

func (d *MetricsDataSet) listKeys(ctx context.Context, runID string) ([]string, error) {
	run, err := d.store().GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, m := range run.Data.Metrics {
		if d.ownsKey(m.Key) {
			keys = append(keys, m.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Describe returns the dataset configuration.
func (d *MetricsDataSet) Describe() map[string]any {
	return map[string]any{
		"type":   "metrics",
		"prefix": d.prefix,
		"run_id": d.runID,
	}
}
