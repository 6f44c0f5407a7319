package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/dataset"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// TestPartitionedMetricsFanOut saves a two-partition metric map and checks
// each partition landed in its own finished child run under the root run.
func TestPartitionedMetricsFanOut(t *testing.T) {
	rt := newRuntime(t, "partitioned-metrics")
	ctx := context.Background()

	root, err := rt.Session.StartRun(ctx, tracking.WithRunName("pipeline"))
	if err != nil {
		t.Fatalf("starting root run failed: %v", err)
	}

	p, err := dataset.NewPartitioned(rt.Session, dataset.PartitionedConfig{
		DataSet: map[string]any{"type": "metric", "key": "sales"},
	})
	if err != nil {
		t.Fatalf("NewPartitioned failed: %v", err)
	}

	if err := p.Save(ctx, map[string]any{"store_1": 0.5, "store_2": 0.7}); err != nil {
		t.Fatalf("partitioned save failed: %v", err)
	}

	children, err := p.FindChildren(ctx)
	if err != nil {
		t.Fatalf("FindChildren failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("found %d children, want 2: %v", len(children), children)
	}

	want := map[string]float64{"store_1": 0.5, "store_2": 0.7}
	for name, value := range want {
		id, ok := children[name]
		if !ok {
			t.Errorf("child run %s not found in %v", name, children)
			continue
		}
		run, err := rt.Store.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun(%s) failed: %v", name, err)
		}
		if run.Info.Status != api.RunStatusFinished {
			t.Errorf("child %s status = %q, want FINISHED", name, run.Info.Status)
		}
		if v, _ := run.Data.Tag(api.TagParentRunID); v != root.ID() {
			t.Errorf("child %s parent = %q, want root %q", name, v, root.ID())
		}
		found := false
		for _, m := range run.Data.Metrics {
			if m.Key == "sales" && m.Value == value {
				found = true
			}
		}
		if !found {
			t.Errorf("child %s missing metric sales=%v, metrics = %+v", name, value, run.Data.Metrics)
		}
	}

	if active := rt.Session.ActiveRun(); active == nil || active.ID() != root.ID() {
		t.Errorf("root run no longer active after dispatch")
	}
	if err := root.End(ctx); err != nil {
		t.Fatalf("ending root failed: %v", err)
	}
}

// TestPartitionedModelRegistry saves models across partitions and checks
// every partition got its own registered model named <partition>\<name>.
func TestPartitionedModelRegistry(t *testing.T) {
	rt := newRuntime(t, "partitioned-registry")
	ctx := context.Background()

	root, err := rt.Session.StartRun(ctx, tracking.WithRunName("pipeline"))
	if err != nil {
		t.Fatalf("starting root run failed: %v", err)
	}
	defer root.End(ctx)

	pm, err := dataset.NewPartitionedModelLogger(rt.Session, dataset.PartitionedModelLoggerConfig{
		DataSet: map[string]any{
			"flavor":    "pickle",
			"save_args": map[string]any{"registered_model_name": "test"},
		},
	})
	if err != nil {
		t.Fatalf("NewPartitionedModelLogger failed: %v", err)
	}

	err = pm.Save(ctx, map[string]any{
		"store_1": []byte("model-one"),
		"store_2": []byte("model-two"),
	})
	if err != nil {
		t.Fatalf("partitioned model save failed: %v", err)
	}

	children, err := pm.FindChildren(ctx)
	if err != nil {
		t.Fatalf("FindChildren failed: %v", err)
	}

	for _, name := range []string{"store_1", "store_2"} {
		modelName := name + `\test`
		versions, err := rt.Store.SearchModelVersions(ctx, "name = '"+modelName+"'")
		if err != nil {
			t.Fatalf("SearchModelVersions(%s) failed: %v", modelName, err)
		}
		if len(versions) != 1 {
			t.Fatalf("model %s has %d versions, want 1", modelName, len(versions))
		}
		if versions[0].RunID != children[name] {
			t.Errorf("model %s version run = %q, want child run %q",
				modelName, versions[0].RunID, children[name])
		}

		files, err := rt.Store.ListArtifacts(ctx, children[name], "model")
		if err != nil {
			t.Fatalf("ListArtifacts(%s) failed: %v", name, err)
		}
		paths := make([]string, 0, len(files))
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		got := strings.Join(paths, ",")
		for _, want := range []string{"model/MLmodel", "model/model.bin"} {
			if !strings.Contains(got, want) {
				t.Errorf("child %s artifacts = %s, want %s", name, got, want)
			}
		}
	}
}

// TestPartitionKeySlashesNormalized saves a partition whose key contains
// slashes and checks the child run and registered model use backslashes.
func TestPartitionKeySlashesNormalized(t *testing.T) {
	rt := newRuntime(t, "partitioned-normalize")
	ctx := context.Background()

	root, err := rt.Session.StartRun(ctx, tracking.WithRunName("pipeline"))
	if err != nil {
		t.Fatalf("starting root run failed: %v", err)
	}
	defer root.End(ctx)

	pm, err := dataset.NewPartitionedModelLogger(rt.Session, dataset.PartitionedModelLoggerConfig{
		DataSet: map[string]any{
			"flavor":    "pickle",
			"save_args": map[string]any{"registered_model_name": "test"},
		},
	})
	if err != nil {
		t.Fatalf("NewPartitionedModelLogger failed: %v", err)
	}
	if err := pm.Save(ctx, map[string]any{"a/b/c": []byte("model")}); err != nil {
		t.Fatalf("partitioned model save failed: %v", err)
	}

	children, err := pm.FindChildren(ctx)
	if err != nil {
		t.Fatalf("FindChildren failed: %v", err)
	}
	if _, ok := children[`a\b\c`]; !ok {
		t.Fatalf(`child run a\b\c not found in %v`, children)
	}

	versions, err := rt.Store.SearchModelVersions(ctx, `name = 'a\b\c\test'`)
	if err != nil {
		t.Fatalf("SearchModelVersions failed: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf(`model a\b\c\test has %d versions, want 1`, len(versions))
	}
}

// TestPartitionedLoadRoundTrip saves partitions and loads them back through
// the lazy per-partition loaders.
func TestPartitionedLoadRoundTrip(t *testing.T) {
	rt := newRuntime(t, "partitioned-load")
	ctx := context.Background()

	root, err := rt.Session.StartRun(ctx, tracking.WithRunName("pipeline"))
	if err != nil {
		t.Fatalf("starting root run failed: %v", err)
	}
	defer root.End(ctx)

	p, err := dataset.NewPartitioned(rt.Session, dataset.PartitionedConfig{
		DataSet: map[string]any{"type": "metric", "key": "sales"},
	})
	if err != nil {
		t.Fatalf("NewPartitioned failed: %v", err)
	}
	if err := p.Save(ctx, map[string]any{"store_1": 0.5, "store_2": 0.7}); err != nil {
		t.Fatalf("partitioned save failed: %v", err)
	}

	loaders, err := p.Loaders(ctx)
	if err != nil {
		t.Fatalf("Loaders failed: %v", err)
	}
	want := map[string]float64{"store_1": 0.5, "store_2": 0.7}
	for name, wantValue := range want {
		load, ok := loaders[name]
		if !ok {
			t.Errorf("no loader for %s", name)
			continue
		}
		got, err := load(ctx)
		if err != nil {
			t.Fatalf("loading %s failed: %v", name, err)
		}
		if got != wantValue {
			t.Errorf("loaded %s = %v, want %v", name, got, wantValue)
		}
	}
}

// TestPartitionedSaveAbortsOnFirstError makes the second partition fail and
// checks the save reports it while the first partition stays intact.
func TestPartitionedSaveAbortsOnFirstError(t *testing.T) {
	rt := newRuntime(t, "partitioned-abort")
	ctx := context.Background()

	root, err := rt.Session.StartRun(ctx, tracking.WithRunName("pipeline"))
	if err != nil {
		t.Fatalf("starting root run failed: %v", err)
	}
	defer root.End(ctx)

	p, err := dataset.NewPartitioned(rt.Session, dataset.PartitionedConfig{
		DataSet: map[string]any{"type": "metric", "key": "sales"},
	})
	if err != nil {
		t.Fatalf("NewPartitioned failed: %v", err)
	}

	err = p.Save(ctx, map[string]any{"store_1": 0.5, "store_2": "not a number"})
	if err == nil {
		t.Fatal("save with a bad partition did not fail")
	}
	if !strings.Contains(err.Error(), "store_2") {
		t.Errorf("error %q does not name the failing partition", err)
	}

	children, err := p.FindChildren(ctx)
	if err != nil {
		t.Fatalf("FindChildren failed: %v", err)
	}
	okRun, err := rt.Store.GetRun(ctx, children["store_1"])
	if err != nil {
		t.Fatalf("GetRun(store_1) failed: %v", err)
	}
	if okRun.Info.Status != api.RunStatusFinished {
		t.Errorf("store_1 status = %q, want FINISHED", okRun.Info.Status)
	}
	failedRun, err := rt.Store.GetRun(ctx, children["store_2"])
	if err != nil {
		t.Fatalf("GetRun(store_2) failed: %v", err)
	}
	if failedRun.Info.Status != api.RunStatusFailed {
		t.Errorf("store_2 status = %q, want FAILED", failedRun.Info.Status)
	}
}
