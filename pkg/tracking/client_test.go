package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/mlbridge-io/mlbridge/pkg/api"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "tester",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestNewClient_RejectsNonHTTPScheme(t *testing.T) {
	_, err := NewClient("file:///tmp/mlruns")
	var te *api.TrackingError
	if !errors.As(err, &te) || te.Code != api.ErrorCodeConfigurationError {
		t.Errorf("NewClient(file URI) error = %v, want CONFIGURATION_ERROR", err)
	}
}

func TestNewClient_DatabricksKeyword(t *testing.T) {
	t.Setenv("DATABRICKS_HOST", "https://adb-123.4.azuredatabricks.net")
	t.Setenv("DATABRICKS_TOKEN", "dapi-secret")

	c, err := NewClient("databricks")
	if err != nil {
		t.Fatalf("NewClient(databricks) failed: %v", err)
	}
	defer c.Close()

	if c.baseURL != "https://adb-123.4.azuredatabricks.net" {
		t.Errorf("baseURL = %q, want workspace host", c.baseURL)
	}
	if c.creds.Token != "dapi-secret" {
		t.Errorf("token = %q, want dapi-secret", c.creds.Token)
	}
}

func TestNewClient_DatabricksMissingHost(t *testing.T) {
	t.Setenv("DATABRICKS_HOST", "")

	_, err := NewClient("databricks")
	var te *api.TrackingError
	if !errors.As(err, &te) || te.Code != api.ErrorCodeConfigurationError {
		t.Errorf("NewClient(databricks) without DATABRICKS_HOST error = %v, want CONFIGURATION_ERROR", err)
	}
}

func TestNewClient_ExpiredToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(-time.Hour))

	_, err := NewClient("http://localhost:5000", WithCredentials(Credentials{Token: token}))
	var te *api.TrackingError
	if !errors.As(err, &te) || te.Code != api.ErrorCodePermissionDenied {
		t.Errorf("NewClient with expired token error = %v, want PERMISSION_DENIED", err)
	}
}

func TestNewClient_OpaqueTokenAccepted(t *testing.T) {
	_, err := NewClient("http://localhost:5000", WithCredentials(Credentials{Token: "opaque-token"}))
	if err != nil {
		t.Errorf("NewClient with opaque token failed: %v", err)
	}
}

func TestClient_BearerAuthorization(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(api.CreateExperimentResponse{ExperimentID: "0"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithCredentials(Credentials{Token: "secret"}))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	if _, err := c.CreateExperiment(context.Background(), "auth"); err != nil {
		t.Fatalf("CreateExperiment failed: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", gotAuth)
	}
}

func TestClient_BasicAuthorization(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		json.NewEncoder(w).Encode(api.CreateExperimentResponse{ExperimentID: "0"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithCredentials(Credentials{Username: "alice", Password: "pw"}))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	if _, err := c.CreateExperiment(context.Background(), "auth"); err != nil {
		t.Fatalf("CreateExperiment failed: %v", err)
	}
	if gotUser != "alice" || gotPass != "pw" {
		t.Errorf("basic auth = %q/%q, want alice/pw", gotUser, gotPass)
	}
}

func TestClient_CreateRun(t *testing.T) {
	runID := api.NewRunID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2.0/mlflow/runs/create" {
			t.Errorf("expected path /api/2.0/mlflow/runs/create, got %s", r.URL.Path)
		}
		var req api.CreateRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.ExperimentID != "1" || req.RunName != "store_1" {
			t.Errorf("request = %+v, want experiment 1 run store_1", req)
		}
		json.NewEncoder(w).Encode(api.CreateRunResponse{Run: &api.Run{
			Info: api.RunInfo{
				RunID:        runID,
				RunName:      req.RunName,
				ExperimentID: req.ExperimentID,
				Status:       api.RunStatusRunning,
				StartTime:    req.StartTime,
			},
		}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	run, err := c.CreateRun(context.Background(), "1", "store_1", 1234, []api.RunTag{
		{Key: api.TagParentRunID, Value: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.Info.RunID != runID {
		t.Errorf("RunID = %q, want %q", run.Info.RunID, runID)
	}
	if run.Info.Status != api.RunStatusRunning {
		t.Errorf("Status = %q, want RUNNING", run.Info.Status)
	}
}

func TestClient_NotFoundMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: &api.TrackingError{
			Code:    api.ErrorCodeResourceDoesNotExist,
			Message: "experiment missing not found",
		}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	_, err = c.GetExperimentByName(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "experiment missing not found") {
		t.Errorf("error %q does not carry the server message", err)
	}
}

func TestClient_AlreadyExistsMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: &api.TrackingError{
			Code:    api.ErrorCodeResourceAlreadyExists,
			Message: "experiment exists",
		}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	if _, err := c.CreateExperiment(context.Background(), "dup"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("error = %v, want ErrAlreadyExists", err)
	}
}

func TestClient_ProtocolErrorKeepsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: &api.TrackingError{
			Code:    api.ErrorCodeInvalidParameterValue,
			Message: "param lr already logged",
		}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	err = c.LogParam(context.Background(), api.NewRunID(), api.Param{Key: "lr", Value: "0.2"})
	var te *api.TrackingError
	if !errors.As(err, &te) || te.Code != api.ErrorCodeInvalidParameterValue {
		t.Errorf("error = %v, want INVALID_PARAMETER_VALUE", err)
	}
}

func TestClient_PlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "backend exploded")
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	_, err = c.GetRun(context.Background(), api.NewRunID())
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v, want status 500 in message", err)
	}
}

func TestClient_CreateRegisteredModelTolerant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: &api.TrackingError{
			Code:    api.ErrorCodeResourceAlreadyExists,
			Message: "model exists",
		}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	if err := c.CreateRegisteredModel(context.Background(), `store_1\test`); err != nil {
		t.Errorf("CreateRegisteredModel on existing model = %v, want nil", err)
	}
}

func TestClient_ArtifactFlow(t *testing.T) {
	runID := api.NewRunID()
	artifacts := make(map[string][]byte)
	var getRunCalls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/2.0/mlflow/runs/get":
			getRunCalls++
			json.NewEncoder(w).Encode(api.GetRunResponse{Run: &api.Run{
				Info: api.RunInfo{
					RunID:       runID,
					ArtifactURI: fmt.Sprintf("mlflow-artifacts:/1/%s/artifacts", runID),
				},
			}})
		case strings.HasPrefix(r.URL.Path, "/api/2.0/mlflow-artifacts/artifacts/") && r.Method == http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			artifacts[r.URL.Path] = data
		case strings.HasPrefix(r.URL.Path, "/api/2.0/mlflow-artifacts/artifacts/") && r.Method == http.MethodGet:
			data, ok := artifacts[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		case r.URL.Path == "/api/2.0/mlflow-artifacts/artifacts" && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(api.ListArtifactsResponse{Files: []api.FileInfo{
				{Path: "model/MLmodel", FileSize: 12},
			}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.UploadArtifact(ctx, runID, "model/MLmodel", strings.NewReader("flavor: test")); err != nil {
		t.Fatalf("UploadArtifact failed: %v", err)
	}
	wantPath := fmt.Sprintf("/api/2.0/mlflow-artifacts/artifacts/1/%s/artifacts/model/MLmodel", runID)
	if _, ok := artifacts[wantPath]; !ok {
		t.Errorf("artifact not stored under %q, have %v", wantPath, artifacts)
	}

	rc, err := c.DownloadArtifact(ctx, runID, "model/MLmodel")
	if err != nil {
		t.Fatalf("DownloadArtifact failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "flavor: test" {
		t.Errorf("artifact content = %q, want %q", data, "flavor: test")
	}

	files, err := c.ListArtifacts(ctx, runID, "model")
	if err != nil {
		t.Fatalf("ListArtifacts failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "model/MLmodel" {
		t.Errorf("ListArtifacts = %+v, want model/MLmodel", files)
	}

	// The artifact root is resolved once and cached.
	if getRunCalls != 1 {
		t.Errorf("runs/get called %d times, want 1", getRunCalls)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
