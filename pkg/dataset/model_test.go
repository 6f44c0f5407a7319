package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/mlbridge-io/mlbridge/pkg/api"
)

func TestModelLoggerSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	run := startRun(t, sess)

	d, err := NewModelLogger(sess, ModelLoggerConfig{Flavor: "sklearn"})
	if err != nil {
		t.Fatalf("NewModelLogger() error: %v", err)
	}

	model := &Model{
		Flavor:   "sklearn",
		Data:     []byte("serialized model bytes"),
		Metadata: map[string]string{"framework_version": "1.4"},
	}
	if err := d.Save(ctx, model); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	files, err := sess.Store().ListArtifacts(ctx, run.ID(), "model")
	if err != nil {
		t.Fatalf("ListArtifacts() error: %v", err)
	}
	found := make(map[string]bool)
	for _, f := range files {
		found[f.Path] = true
	}
	if !found["model/MLmodel"] || !found["model/model.bin"] {
		t.Errorf("artifacts = %v, want model/MLmodel and model/model.bin", files)
	}

	raw, err := d.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got, ok := raw.(*Model)
	if !ok {
		t.Fatalf("Load() returned %T, want *Model", raw)
	}
	if !bytes.Equal(got.Data, model.Data) {
		t.Errorf("loaded data = %q, want %q", got.Data, model.Data)
	}
	if got.Flavor != "sklearn" {
		t.Errorf("loaded flavor = %q, want \"sklearn\"", got.Flavor)
	}
	if got.Metadata["framework_version"] != "1.4" {
		t.Errorf("loaded metadata = %v, want framework_version 1.4", got.Metadata)
	}
}

func TestModelLoggerRawBytes(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	d, err := NewModelLogger(sess, ModelLoggerConfig{Flavor: "onnx", ArtifactPath: "detector"})
	if err != nil {
		t.Fatalf("NewModelLogger() error: %v", err)
	}
	if err := d.Save(ctx, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	raw, err := d.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got := raw.(*Model)
	if got.Flavor != "onnx" {
		t.Errorf("flavor = %q, want dataset flavor \"onnx\"", got.Flavor)
	}
	if !bytes.Equal(got.Data, []byte{0x01, 0x02}) {
		t.Errorf("data = %v, want raw bytes back", got.Data)
	}
}

func TestModelLoggerRegistersVersion(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	run := startRun(t, sess)

	d, err := NewModelLogger(sess, ModelLoggerConfig{
		Flavor:              "sklearn",
		RegisteredModelName: "churn",
	})
	if err != nil {
		t.Fatalf("NewModelLogger() error: %v", err)
	}
	if err := d.Save(ctx, []byte("v1")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	versions, err := sess.Store().SearchModelVersions(ctx, "name = 'churn'")
	if err != nil {
		t.Fatalf("SearchModelVersions() error: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(versions))
	}
	v := versions[0]
	if v.RunID != run.ID() {
		t.Errorf("version run ID = %q, want %q", v.RunID, run.ID())
	}
	wantSource := fmt.Sprintf("runs:/%s/model", run.ID())
	if v.Source != wantSource {
		t.Errorf("version source = %q, want %q", v.Source, wantSource)
	}

	// a second save adds a second version under the same name
	if err := d.Save(ctx, []byte("v2")); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}
	versions, err = sess.Store().SearchModelVersions(ctx, "name = 'churn'")
	if err != nil {
		t.Fatalf("SearchModelVersions() error: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("got %d versions after second save, want 2", len(versions))
	}
}

func TestModelLoggerFlavorMismatch(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	d, err := NewModelLogger(sess, ModelLoggerConfig{Flavor: "sklearn"})
	if err != nil {
		t.Fatalf("NewModelLogger() error: %v", err)
	}
	err = d.Save(ctx, &Model{Flavor: "onnx", Data: []byte("x")})
	if err == nil {
		t.Fatal("Save() with mismatched flavor expected error, got nil")
	}
	var terr *api.TrackingError
	if !errors.As(err, &terr) || terr.Code != api.ErrorCodeInvalidParameterValue {
		t.Errorf("Save() error = %v, want INVALID_PARAMETER_VALUE", err)
	}
}

func TestModelLoggerRunIDConflict(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)

	pinned := startRun(t, sess)
	pinnedID := pinned.ID()
	if err := pinned.End(ctx); err != nil {
		t.Fatalf("End() error: %v", err)
	}
	startRun(t, sess) // a different run is now active

	d, err := NewModelLogger(sess, ModelLoggerConfig{Flavor: "sklearn", RunID: pinnedID})
	if err != nil {
		t.Fatalf("NewModelLogger() error: %v", err)
	}
	err = d.Save(ctx, []byte("x"))
	if err == nil {
		t.Fatal("Save() with conflicting run expected error, got nil")
	}
	var terr *api.TrackingError
	if !errors.As(err, &terr) || terr.Code != api.ErrorCodeInvalidState {
		t.Errorf("Save() error = %v, want INVALID_STATE", err)
	}
}

func TestModelLoggerExists(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	startRun(t, sess)

	d, err := NewModelLogger(sess, ModelLoggerConfig{Flavor: "sklearn"})
	if err != nil {
		t.Fatalf("NewModelLogger() error: %v", err)
	}

	ok, err := d.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if ok {
		t.Error("Exists() = true before save")
	}

	if err := d.Save(ctx, []byte("x")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if ok, _ := d.Exists(ctx); !ok {
		t.Error("Exists() = false after save")
	}
}

func TestModelLoggerMLmodelContent(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	run := startRun(t, sess)

	d, err := NewModelLogger(sess, ModelLoggerConfig{Flavor: "sklearn"})
	if err != nil {
		t.Fatalf("NewModelLogger() error: %v", err)
	}
	if err := d.Save(ctx, []byte("x")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	rc, err := sess.Store().DownloadArtifact(ctx, run.ID(), "model/MLmodel")
	if err != nil {
		t.Fatalf("DownloadArtifact() error: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading MLmodel: %v", err)
	}
	if !bytes.Contains(content, []byte("flavor: sklearn")) {
		t.Errorf("MLmodel = %q, want it to record the flavor", content)
	}
	if !bytes.Contains(content, []byte(run.ID())) {
		t.Errorf("MLmodel = %q, want it to record the run ID", content)
	}
}
