package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mlbridge-io/mlbridge/pkg/config"
	"github.com/mlbridge-io/mlbridge/pkg/trackingtest"
)

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	return cmd, &buf
}

// clearTrackingEnv neutralizes environment overrides so tests only see the
// config files they write themselves.
func clearTrackingEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"MLBRIDGE_CONFIG", "MLBRIDGE_TRACKING_URI", "MLBRIDGE_REGISTRY_URI",
		"MLBRIDGE_EXPERIMENT", "MLBRIDGE_RUN_NAME", "MLFLOW_TRACKING_URI",
	} {
		t.Setenv(v, "")
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "mlbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestInitCmd(t *testing.T) {
	dir := t.TempDir()
	projectPath = dir
	defer func() { projectPath = "." }()

	cmd, out := newTestCmd()
	if err := runInit(cmd, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}
	if !strings.Contains(out.String(), "mlbridge.yaml") {
		t.Errorf("output %q does not name the written file", out.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "mlbridge.yaml"))
	if err != nil {
		t.Fatalf("template not written: %v", err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Errorf("template is not valid YAML: %v", err)
	}

	if err := runInit(cmd, nil); err == nil {
		t.Error("second runInit did not fail without --force")
	}

	initForce = true
	defer func() { initForce = false }()
	if err := runInit(cmd, nil); err != nil {
		t.Errorf("runInit --force failed: %v", err)
	}
}

func TestCheckCmd(t *testing.T) {
	clearTrackingEnv(t)
	srv, _ := trackingtest.NewServer(t)

	dir := t.TempDir()
	configPath = writeConfig(t, dir, "server:\n  tracking_uri: "+srv.URL+"\n")
	projectPath = dir
	defer func() { configPath = ""; projectPath = "." }()

	cmd, out := newTestCmd()
	if err := runCheck(cmd, nil); err != nil {
		t.Fatalf("runCheck failed: %v", err)
	}
	for _, want := range []string{srv.URL, "reachable"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("check output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCheckCmdUnreachable(t *testing.T) {
	clearTrackingEnv(t)

	dir := t.TempDir()
	configPath = writeConfig(t, dir, "server:\n  tracking_uri: http://127.0.0.1:1\n")
	projectPath = dir
	defer func() { configPath = ""; projectPath = "." }()

	cmd, _ := newTestCmd()
	if err := runCheck(cmd, nil); err == nil {
		t.Error("runCheck against a dead server did not fail")
	}
}

func TestUICmd(t *testing.T) {
	clearTrackingEnv(t)
	dir := t.TempDir()
	projectPath = dir
	defer func() { configPath = ""; projectPath = "." }()

	configPath = writeConfig(t, dir, "server:\n  tracking_uri: http://mlflow.internal:8080\n")
	cmd, out := newTestCmd()
	if err := runUI(cmd, nil); err != nil {
		t.Fatalf("runUI failed: %v", err)
	}
	if !strings.Contains(out.String(), "http://mlflow.internal:8080") {
		t.Errorf("server-backed output = %q, want the tracking URI", out.String())
	}

	configPath = writeConfig(t, dir, "server:\n  tracking_uri: "+dir+"\n")
	cmd, out = newTestCmd()
	if err := runUI(cmd, nil); err != nil {
		t.Fatalf("runUI failed for local store: %v", err)
	}
	if !strings.Contains(out.String(), "http://127.0.0.1:5000") {
		t.Errorf("local-store output = %q, want the default UI address", out.String())
	}
	if !strings.Contains(out.String(), "mlflow ui") {
		t.Errorf("local-store output = %q, want a serve hint", out.String())
	}

	uiHost, uiPort = "0.0.0.0", "8081"
	defer func() { uiHost, uiPort = "", "" }()
	cmd, out = newTestCmd()
	if err := runUI(cmd, nil); err != nil {
		t.Fatalf("runUI with overrides failed: %v", err)
	}
	if !strings.Contains(out.String(), "http://0.0.0.0:8081") {
		t.Errorf("override output = %q, want the overridden address", out.String())
	}
}
