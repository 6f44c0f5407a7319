package integration

import (
	"context"
	"testing"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/dataset"
	"github.com/mlbridge-io/mlbridge/pkg/params"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// TestPipelineRunRoundTrip walks a pipeline run through its full life:
// start a named run, log flattened parameters and a metric, finish, and
// read everything back through the REST client.
func TestPipelineRunRoundTrip(t *testing.T) {
	rt := newRuntime(t, "pipeline-round-trip")
	ctx := context.Background()

	run, err := rt.Session.StartRun(ctx, tracking.WithRunName("training"))
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	err = params.Log(ctx, rt.Store, run.ID(), map[string]any{
		"model": map[string]any{"depth": 8, "lr": 0.1},
	}, params.Options{FlattenDicts: true, Recursive: true, Sep: "."})
	if err != nil {
		t.Fatalf("logging params failed: %v", err)
	}

	metrics := dataset.NewMetrics(rt.Session, dataset.MetricsConfig{})
	if err := metrics.Save(ctx, map[string]any{"accuracy": 0.93}); err != nil {
		t.Fatalf("saving metrics failed: %v", err)
	}

	if err := run.End(ctx); err != nil {
		t.Fatalf("ending run failed: %v", err)
	}

	got, err := rt.Store.GetRun(ctx, run.ID())
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Info.Status != api.RunStatusFinished {
		t.Errorf("status = %q, want FINISHED", got.Info.Status)
	}
	if got.Info.RunName != "training" {
		t.Errorf("run name = %q, want training", got.Info.RunName)
	}

	wantParams := map[string]string{"model.depth": "8", "model.lr": "0.1"}
	for key, want := range wantParams {
		found := false
		for _, p := range got.Data.Params {
			if p.Key == key {
				found = true
				if p.Value != want {
					t.Errorf("param %s = %q, want %q", key, p.Value, want)
				}
			}
		}
		if !found {
			t.Errorf("param %s not logged", key)
		}
	}

	foundMetric := false
	for _, m := range got.Data.Metrics {
		if m.Key == "accuracy" && m.Value == 0.93 {
			foundMetric = true
		}
	}
	if !foundMetric {
		t.Errorf("metric accuracy not logged, metrics = %+v", got.Data.Metrics)
	}
}

// TestNestedRunsShareExperiment starts a child run inside an active run and
// checks the parent linkage the tracking UI groups runs by.
func TestNestedRunsShareExperiment(t *testing.T) {
	rt := newRuntime(t, "pipeline-nested")
	ctx := context.Background()

	parent, err := rt.Session.StartRun(ctx, tracking.WithRunName("outer"))
	if err != nil {
		t.Fatalf("starting parent failed: %v", err)
	}
	child, err := rt.Session.StartRun(ctx, tracking.WithRunName("inner"), tracking.WithNested())
	if err != nil {
		t.Fatalf("starting child failed: %v", err)
	}

	got, err := rt.Store.GetRun(ctx, child.ID())
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if v, ok := got.Data.Tag(api.TagParentRunID); !ok || v != parent.ID() {
		t.Errorf("parent tag = %q, want %q", v, parent.ID())
	}
	if got.Info.ExperimentID != parent.Run().Info.ExperimentID {
		t.Errorf("child experiment = %q, want parent's %q",
			got.Info.ExperimentID, parent.Run().Info.ExperimentID)
	}

	if err := child.End(ctx); err != nil {
		t.Fatalf("ending child failed: %v", err)
	}
	if err := parent.End(ctx); err != nil {
		t.Fatalf("ending parent failed: %v", err)
	}
	if active := rt.Session.ActiveRun(); active != nil {
		t.Errorf("run still active after both ended: %s", active.ID())
	}
}

// TestDeactivatedDataSetLogsNothing saves through a deactivated dataset and
// checks nothing reaches the server.
func TestDeactivatedDataSetLogsNothing(t *testing.T) {
	rt := newRuntime(t, "pipeline-disabled")
	ctx := context.Background()

	metrics := dataset.NewMetrics(rt.Session, dataset.MetricsConfig{})
	metrics.SetLoggingActive(false)
	if err := metrics.Save(ctx, map[string]any{"accuracy": 0.5}); err != nil {
		t.Fatalf("deactivated save failed: %v", err)
	}
	if active := rt.Session.ActiveRun(); active != nil {
		t.Errorf("deactivated save started run %s", active.ID())
	}
}
