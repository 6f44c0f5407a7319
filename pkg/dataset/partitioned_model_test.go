package dataset

import (
	"bytes"
	"context"
	"fmt"
	"testing"
)

func TestPartitionedModelRegistersPrefixedNames(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	p, err := NewPartitionedModelLogger(sess, PartitionedModelLoggerConfig{
		DataSet: map[string]any{
			"flavor":    "sklearn",
			"save_args": map[string]any{"registered_model_name": "test"},
		},
	})
	if err != nil {
		t.Fatalf("NewPartitionedModelLogger() error: %v", err)
	}

	data := map[string]any{
		"store_1": &Model{Flavor: "sklearn", Data: []byte("model one")},
		"store_2": &Model{Flavor: "sklearn", Data: []byte("model two")},
	}
	if err := p.Save(ctx, data); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	children, err := p.FindChildren(ctx)
	if err != nil {
		t.Fatalf("FindChildren() error: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("got %d child runs, want 2: %v", len(children), children)
	}

	for _, name := range []string{`store_1\test`, `store_2\test`} {
		versions, err := sess.Store().SearchModelVersions(ctx, fmt.Sprintf("name = '%s'", name))
		if err != nil {
			t.Fatalf("SearchModelVersions(%q) error: %v", name, err)
		}
		if len(versions) != 1 {
			t.Errorf("model %q has %d versions, want 1", name, len(versions))
			continue
		}
		partition := name[:len(name)-len(`\test`)]
		if versions[0].RunID != children[partition] {
			t.Errorf("model %q run = %q, want the %q child run %q",
				name, versions[0].RunID, partition, children[partition])
		}
	}
}

func TestPartitionedModelSlashKey(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	p, err := NewPartitionedModelLogger(sess, PartitionedModelLoggerConfig{
		DataSet: map[string]any{
			"flavor":    "sklearn",
			"save_args": map[string]any{"registered_model_name": "test"},
		},
	})
	if err != nil {
		t.Fatalf("NewPartitionedModelLogger() error: %v", err)
	}

	if err := p.Save(ctx, map[string]any{"a/b/c": &Model{Flavor: "sklearn", Data: []byte("m")}}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	children, err := p.FindChildren(ctx)
	if err != nil {
		t.Fatalf("FindChildren() error: %v", err)
	}
	if _, ok := children[`a\b\c`]; !ok {
		t.Errorf(`children = %v, want a run named a\b\c`, children)
	}

	versions, err := sess.Store().SearchModelVersions(ctx, `name = 'a\b\c\test'`)
	if err != nil {
		t.Fatalf("SearchModelVersions() error: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf(`model a\b\c\test has %d versions, want 1`, len(versions))
	}
}

func TestPartitionedModelLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	p, err := NewPartitionedModelLogger(sess, PartitionedModelLoggerConfig{
		DataSet: map[string]any{"flavor": "sklearn"},
	})
	if err != nil {
		t.Fatalf("NewPartitionedModelLogger() error: %v", err)
	}

	if err := p.Save(ctx, map[string]any{"store_1": &Model{Flavor: "sklearn", Data: []byte("bytes")}}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaders, err := p.Loaders(ctx)
	if err != nil {
		t.Fatalf("Loaders() error: %v", err)
	}
	raw, err := loaders["store_1"](ctx)
	if err != nil {
		t.Fatalf("loading store_1: %v", err)
	}
	model, ok := raw.(*Model)
	if !ok {
		t.Fatalf("loader returned %T, want *Model", raw)
	}
	if !bytes.Equal(model.Data, []byte("bytes")) {
		t.Errorf("loaded data = %q, want \"bytes\"", model.Data)
	}
}

func TestPartitionedModelValidatesInnerConfig(t *testing.T) {
	sess := newSession(t)

	// overriding the inner type with a dataset that needs more config makes
	// the construction probe fail
	_, err := NewPartitionedModelLogger(sess, PartitionedModelLoggerConfig{
		DataSet: map[string]any{"type": "metric"},
	})
	if err == nil {
		t.Fatal("NewPartitionedModelLogger() with invalid inner config expected error, got nil")
	}
}

func TestPartitionedModelFromConfig(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	ds, err := FromConfig(sess, map[string]any{
		"type": "partitioned_model_logger",
		"data_set": map[string]any{
			"flavor":    "sklearn",
			"save_args": map[string]any{"registered_model_name": "scorer"},
		},
	})
	if err != nil {
		t.Fatalf("FromConfig() error: %v", err)
	}

	if err := ds.Save(ctx, map[string]any{"eu": &Model{Flavor: "sklearn", Data: []byte("m")}}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	versions, err := sess.Store().SearchModelVersions(ctx, `name = 'eu\scorer'`)
	if err != nil {
		t.Fatalf("SearchModelVersions() error: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf(`model eu\scorer has %d versions, want 1`, len(versions))
	}
}
