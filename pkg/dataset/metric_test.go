package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
	"github.com/mlbridge-io/mlbridge/pkg/tracking/memory"
)

// newSession returns an initialized session on a fresh in-memory store.
func newSession(t *testing.T) *tracking.Session {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	sess := tracking.NewSession(store, tracking.ExperimentOptions{Name: "dataset-test"})
	if err := sess.Init(context.Background()); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	return sess
}

// startRun starts a root run and returns it.
func startRun(t *testing.T, sess *tracking.Session) *tracking.ActiveRun {
	t.Helper()
	run, err := sess.StartRun(context.Background())
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}
	return run
}

func TestMetricSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	d, err := NewMetric(sess, MetricConfig{Key: "accuracy"})
	if err != nil {
		t.Fatalf("NewMetric() error: %v", err)
	}

	if err := d.Save(ctx, 0.92); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := d.Save(ctx, Point{Value: 0.95, Step: 1}); err != nil {
		t.Fatalf("Save(Point) error: %v", err)
	}

	got, err := d.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != 0.95 {
		t.Errorf("Load() = %v, want 0.95", got)
	}

	history, err := d.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("LoadHistory() error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("LoadHistory() returned %d points, want 2", len(history))
	}
	if history[0] != (Point{Value: 0.92, Step: 0}) {
		t.Errorf("history[0] = %+v, want {0.92 0}", history[0])
	}

	ok, err := d.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if !ok {
		t.Error("Exists() = false after save")
	}
}

func TestMetricSaveWithoutRun(t *testing.T) {
	sess := newSession(t)
	d, err := NewMetric(sess, MetricConfig{Key: "loss"})
	if err != nil {
		t.Fatalf("NewMetric() error: %v", err)
	}

	err = d.Save(context.Background(), 0.1)
	if err == nil {
		t.Fatal("Save() without a run expected error, got nil")
	}
	var terr *api.TrackingError
	if !errors.As(err, &terr) || terr.Code != api.ErrorCodeInvalidState {
		t.Errorf("Save() error = %v, want INVALID_STATE", err)
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Op != "save" || derr.DataSet != "metric" {
		t.Errorf("Save() error = %v, want dataset error with op save", err)
	}
}

func TestMetricPinnedRun(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	run := startRun(t, sess)
	runID := run.ID()
	if err := run.End(ctx); err != nil {
		t.Fatalf("End() error: %v", err)
	}

	d, err := NewMetric(sess, MetricConfig{Key: "loss", RunID: runID})
	if err != nil {
		t.Fatalf("NewMetric() error: %v", err)
	}
	if err := d.Save(ctx, 0.1); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := d.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != 0.1 {
		t.Errorf("Load() = %v, want 0.1", got)
	}
}

func TestMetricInvalidPayload(t *testing.T) {
	sess := newSession(t)
	startRun(t, sess)

	d, err := NewMetric(sess, MetricConfig{Key: "loss"})
	if err != nil {
		t.Fatalf("NewMetric() error: %v", err)
	}

	err = d.Save(context.Background(), "not a number")
	if err == nil {
		t.Fatal("Save(string) expected error, got nil")
	}
	var terr *api.TrackingError
	if !errors.As(err, &terr) || terr.Code != api.ErrorCodeInvalidParameterValue {
		t.Errorf("Save() error = %v, want INVALID_PARAMETER_VALUE", err)
	}
}

func TestMetricRequiresKey(t *testing.T) {
	sess := newSession(t)
	if _, err := NewMetric(sess, MetricConfig{}); err == nil {
		t.Error("NewMetric() without key expected error, got nil")
	}
}

func TestMetricLoggingDeactivated(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	d, err := NewMetric(sess, MetricConfig{Key: "loss"})
	if err != nil {
		t.Fatalf("NewMetric() error: %v", err)
	}
	d.SetLoggingActive(false)

	if err := d.Save(ctx, 0.1); err != nil {
		t.Fatalf("Save() with logging off error: %v", err)
	}
	ok, err := d.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if ok {
		t.Error("Exists() = true, want false: deactivated save must not log")
	}

	d.SetLoggingActive(true)
	if err := d.Save(ctx, 0.1); err != nil {
		t.Fatalf("Save() after reactivation error: %v", err)
	}
	if ok, _ := d.Exists(ctx); !ok {
		t.Error("Exists() = false after reactivated save")
	}
}

func TestMetricFromConfig(t *testing.T) {
	sess := newSession(t)
	startRun(t, sess)

	ds, err := FromConfig(sess, map[string]any{"type": "metric", "key": "loss"})
	if err != nil {
		t.Fatalf("FromConfig() error: %v", err)
	}
	if _, ok := ds.(*MetricDataSet); !ok {
		t.Fatalf("FromConfig() returned %T, want *MetricDataSet", ds)
	}
	if err := ds.Save(context.Background(), 0.3); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
}

func TestFromConfigUnknownType(t *testing.T) {
	sess := newSession(t)

	_, err := FromConfig(sess, map[string]any{"type": "parquet"})
	if err == nil {
		t.Fatal("FromConfig() with unknown type expected error, got nil")
	}
	var terr *api.TrackingError
	if !errors.As(err, &terr) || terr.Code != api.ErrorCodeConfigurationError {
		t.Errorf("FromConfig() error = %v, want CONFIGURATION_ERROR", err)
	}

	if _, err := FromConfig(sess, map[string]any{}); err == nil {
		t.Error("FromConfig() without type expected error, got nil")
	}
}
