// Package trackingtest provides an in-process tracking server for tests.
//
// Handler serves the REST API subset the tracking client speaks on top of
// any Store, so client round trips can be exercised against httptest servers
// instead of a real deployment.
package trackingtest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
	"github.com/mlbridge-io/mlbridge/pkg/tracking/memory"
)

// Option configures a Handler.
type Option func(*server)

// WithToken requires every request to carry the given static bearer token.
func WithToken(token string) Option {
	return func(s *server) { s.token = token }
}

// WithJWTSecret requires every request to carry a bearer token that is an
// HS256-signed JWT verifiable with secret.
func WithJWTSecret(secret []byte) Option {
	return func(s *server) { s.jwtSecret = secret }
}

// NewServer starts a tracking server backed by a fresh in-memory store and
// registers cleanup with the test. The returned store gives tests direct
// access to the state behind the HTTP surface.
func NewServer(tb testing.TB, opts ...Option) (*httptest.Server, *memory.Store) {
	tb.Helper()
	store := memory.New()
	srv := httptest.NewServer(Handler(store, opts...))
	tb.Cleanup(func() {
		srv.Close()
		store.Close()
	})
	return srv, store
}

type server struct {
	store     tracking.Store
	mux       *http.ServeMux
	token     string
	jwtSecret []byte
}

// Handler serves the tracking REST API on top of store. Artifact proxy paths
// follow the "<experiment>/<run>/artifacts/<path>" layout the run artifact
// URIs advertise.
func Handler(store tracking.Store, opts ...Option) http.Handler {
	s := &server{store: store, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /api/2.0/mlflow/experiments/create", s.handleCreateExperiment)
	s.mux.HandleFunc("GET /api/2.0/mlflow/experiments/get-by-name", s.handleGetExperimentByName)
	s.mux.HandleFunc("POST /api/2.0/mlflow/experiments/restore", s.handleRestoreExperiment)
	s.mux.HandleFunc("POST /api/2.0/mlflow/runs/create", s.handleCreateRun)
	s.mux.HandleFunc("GET /api/2.0/mlflow/runs/get", s.handleGetRun)
	s.mux.HandleFunc("POST /api/2.0/mlflow/runs/update", s.handleUpdateRun)
	s.mux.HandleFunc("POST /api/2.0/mlflow/runs/search", s.handleSearchRuns)
	s.mux.HandleFunc("POST /api/2.0/mlflow/runs/log-metric", s.handleLogMetric)
	s.mux.HandleFunc("POST /api/2.0/mlflow/runs/log-parameter", s.handleLogParam)
	s.mux.HandleFunc("POST /api/2.0/mlflow/runs/set-tag", s.handleSetTag)
	s.mux.HandleFunc("POST /api/2.0/mlflow/runs/log-batch", s.handleLogBatch)
	s.mux.HandleFunc("GET /api/2.0/mlflow/metrics/get-history", s.handleGetMetricHistory)
	s.mux.HandleFunc("POST /api/2.0/mlflow/registered-models/create", s.handleCreateRegisteredModel)
	s.mux.HandleFunc("POST /api/2.0/mlflow/model-versions/create", s.handleCreateModelVersion)
	s.mux.HandleFunc("GET /api/2.0/mlflow/model-versions/search", s.handleSearchModelVersions)
	s.mux.HandleFunc("GET /api/2.0/mlflow-artifacts/artifacts", s.handleListArtifacts)
	s.mux.HandleFunc("GET /api/2.0/mlflow-artifacts/artifacts/{path...}", s.handleDownloadArtifact)
	s.mux.HandleFunc("PUT /api/2.0/mlflow-artifacts/artifacts/{path...}", s.handleUploadArtifact)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	if s.token != "" || s.jwtSecret != nil {
		return s.requireBearer(s.mux)
	}
	return s.mux
}

// requireBearer rejects requests without an acceptable Authorization header.
// The health endpoint stays open for probes.
func (s *server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			if err := s.authorize(r); err != nil {
				writeError(w, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return api.NewPermissionDeniedError("missing bearer token")
	}
	token := strings.TrimPrefix(header, "Bearer ")

	if s.jwtSecret != nil {
		_, err := jwtlib.Parse(token,
			func(*jwtlib.Token) (any, error) { return s.jwtSecret, nil },
			jwtlib.WithValidMethods([]string{"HS256"}))
		if err != nil {
			return api.NewPermissionDeniedError("invalid bearer token: %s", err)
		}
		return nil
	}
	if token != s.token {
		return api.NewPermissionDeniedError("invalid bearer token")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Experiments
// ---------------------------------------------------------------------------

func (s *server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req api.CreateExperimentRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.store.CreateExperiment(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.CreateExperimentResponse{ExperimentID: id})
}

func (s *server) handleGetExperimentByName(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.GetExperimentByName(r.Context(), r.URL.Query().Get("experiment_name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.GetExperimentByNameResponse{Experiment: exp})
}

func (s *server) handleRestoreExperiment(w http.ResponseWriter, r *http.Request) {
	var req api.RestoreExperimentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.RestoreExperiment(r.Context(), req.ExperimentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRunRequest
	if !decode(w, r, &req) {
		return
	}
	run, err := s.store.CreateRun(r.Context(), req.ExperimentID, req.RunName, req.StartTime, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.CreateRunResponse{Run: run})
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.URL.Query().Get("run_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.GetRunResponse{Run: run})
}

func (s *server) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateRunRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.UpdateRun(r.Context(), req.RunID, req.Status, req.EndTime); err != nil {
		writeError(w, err)
		return
	}
	run, err := s.store.GetRun(r.Context(), req.RunID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.UpdateRunResponse{RunInfo: &run.Info})
}

func (s *server) handleSearchRuns(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRunsRequest
	if !decode(w, r, &req) {
		return
	}
	runs, err := s.store.SearchRuns(r.Context(), req.ExperimentIDs, req.Filter, req.MaxResults)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.SearchRunsResponse{Runs: runs})
}

// ---------------------------------------------------------------------------
// Run data
// ---------------------------------------------------------------------------

func (s *server) handleLogMetric(w http.ResponseWriter, r *http.Request) {
	var req api.LogMetricRequest
	if !decode(w, r, &req) {
		return
	}
	m := api.Metric{Key: req.Key, Value: req.Value, Timestamp: req.Timestamp, Step: req.Step}
	if err := s.store.LogMetric(r.Context(), req.RunID, m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

func (s *server) handleLogParam(w http.ResponseWriter, r *http.Request) {
	var req api.LogParamRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.LogParam(r.Context(), req.RunID, api.Param{Key: req.Key, Value: req.Value}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

func (s *server) handleSetTag(w http.ResponseWriter, r *http.Request) {
	var req api.SetTagRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.SetTag(r.Context(), req.RunID, api.RunTag{Key: req.Key, Value: req.Value}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

func (s *server) handleLogBatch(w http.ResponseWriter, r *http.Request) {
	var req api.LogBatchRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.LogBatch(r.Context(), req.RunID, req.Metrics, req.Params, req.Tags); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

func (s *server) handleGetMetricHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metrics, err := s.store.GetMetricHistory(r.Context(), q.Get("run_id"), q.Get("metric_key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.GetMetricHistoryResponse{Metrics: metrics})
}

// ---------------------------------------------------------------------------
// Model registry
// ---------------------------------------------------------------------------

func (s *server) handleCreateRegisteredModel(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRegisteredModelRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.CreateRegisteredModel(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.CreateRegisteredModelResponse{
		RegisteredModel: &api.RegisteredModel{Name: req.Name},
	})
}

func (s *server) handleCreateModelVersion(w http.ResponseWriter, r *http.Request) {
	var req api.CreateModelVersionRequest
	if !decode(w, r, &req) {
		return
	}
	mv, err := s.store.CreateModelVersion(r.Context(), req.Name, req.Source, req.RunID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.CreateModelVersionResponse{ModelVersion: mv})
}

func (s *server) handleSearchModelVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.SearchModelVersions(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.SearchModelVersionsResponse{ModelVersions: versions})
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

func (s *server) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	runID, path, err := splitProxyPath(r.PathValue("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.UploadArtifact(r.Context(), runID, path, r.Body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	runID, path, err := splitProxyPath(r.PathValue("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	rc, err := s.store.DownloadArtifact(r.Context(), runID, path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, rc)
}

func (s *server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	runID, path, err := splitProxyPath(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	files, err := s.store.ListArtifacts(r.Context(), runID, path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, api.ListArtifactsResponse{Files: files})
}

// splitProxyPath splits a proxy path "<experiment>/<run>/artifacts[/<path>]"
// into the run ID and the path below the run's artifact root.
func splitProxyPath(p string) (string, string, error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 3 || parts[2] != "artifacts" {
		return "", "", api.NewInvalidParameterError("artifact path %q is not below a run artifact root", p)
	}
	return parts[1], strings.Join(parts[3:], "/"), nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, api.NewInvalidParameterError("invalid request body: %s", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError renders an error the way the protocol does, so the client's
// sentinel mapping round-trips.
func writeError(w http.ResponseWriter, err error) {
	var terr *api.TrackingError
	switch {
	case errors.As(err, &terr):
	case errors.Is(err, tracking.ErrNotFound):
		terr = api.NewNotFoundError("%s", err)
	case errors.Is(err, tracking.ErrAlreadyExists):
		terr = api.NewAlreadyExistsError("%s", err)
	default:
		terr = api.NewInternalError("%s", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(terr.Code.HTTPStatus())
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: terr})
}
