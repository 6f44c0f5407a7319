package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/debug"
)

const (
	apiPrefix      = "/api/2.0/mlflow"
	artifactPrefix = "/api/2.0/mlflow-artifacts/artifacts"

	defaultTimeout = 60 * time.Second
)

// Client implements Store against a remote tracking server speaking the
// MLflow REST API 2.0. Artifacts go through the server's artifact proxy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials

	mu    sync.Mutex
	roots map[string]string // run ID -> artifact root path under the proxy
}

var _ Store = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCredentials sets the credentials sent with every request.
func WithCredentials(creds Credentials) ClientOption {
	return func(c *Client) { c.creds = creds }
}

// WithTimeout sets the per-request timeout. Defaults to 60s.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient injects a custom HTTP client (useful for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for the tracking server at uri. The keyword URI
// "databricks" (or "databricks://<profile>") selects the workspace from the
// DATABRICKS_HOST and DATABRICKS_TOKEN environment variables. Credentials
// default to the MLFLOW_TRACKING_* environment variables.
func NewClient(uri string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		creds:      CredentialsFromMap(nil),
		roots:      make(map[string]string),
	}

	if uri == "databricks" || strings.HasPrefix(uri, "databricks://") {
		host, creds, err := resolveDatabricks()
		if err != nil {
			return nil, err
		}
		uri = host
		c.creds = creds
	}

	for _, opt := range opts {
		opt(c)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, api.NewConfigurationError("invalid tracking URI %q: %s", uri, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, api.NewConfigurationError("tracking URI %q: REST client requires an http or https URI", uri)
	}
	c.baseURL = strings.TrimRight(uri, "/")

	if err := c.creds.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// resolveDatabricks maps the "databricks" keyword to the workspace host
// configured in the environment.
func resolveDatabricks() (string, Credentials, error) {
	host := os.Getenv("DATABRICKS_HOST")
	if host == "" {
		return "", Credentials{}, api.NewConfigurationError(
			"tracking URI is \"databricks\" but DATABRICKS_HOST is not set")
	}
	return host, Credentials{Token: os.Getenv("DATABRICKS_TOKEN")}, nil
}

// do performs one JSON request. out may be nil for calls without a response
// body of interest.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	var data []byte
	if in != nil {
		var err error
		data, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", path, err)
		}
		body = strings.NewReader(string(data))
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	debug.Log("tracking", "request", "method", method, "url", u)
	if len(data) > 0 {
		debug.Raw("tracking", string(data))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracking server request failed: %w", err)
	}
	defer resp.Body.Close()
	debug.Log("tracking", "response", "status", resp.StatusCode, "url", u)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapWireError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.creds.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	case c.creds.Username != "":
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}
}

// mapWireError converts a non-2xx response into an error. Protocol error
// bodies keep their code; not-found and conflict map onto the package
// sentinels so callers can use errors.Is.
func mapWireError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope api.ErrorResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		te := envelope.Error
		switch te.Code {
		case api.ErrorCodeResourceDoesNotExist:
			return fmt.Errorf("%w: %s", ErrNotFound, te.Message)
		case api.ErrorCodeResourceAlreadyExists:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, te.Message)
		}
		return te
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyExists
	case http.StatusUnauthorized, http.StatusForbidden:
		return api.NewPermissionDeniedError("tracking server rejected credentials (status %d)", resp.StatusCode)
	}
	return fmt.Errorf("tracking server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

// ---------------------------------------------------------------------------
// Experiments
// ---------------------------------------------------------------------------

func (c *Client) CreateExperiment(ctx context.Context, name string) (string, error) {
	var out api.CreateExperimentResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/experiments/create", nil,
		&api.CreateExperimentRequest{Name: name}, &out)
	if err != nil {
		return "", err
	}
	return out.ExperimentID, nil
}

func (c *Client) GetExperimentByName(ctx context.Context, name string) (*api.Experiment, error) {
	var out api.GetExperimentByNameResponse
	query := url.Values{"experiment_name": {name}}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/experiments/get-by-name", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Experiment, nil
}

func (c *Client) RestoreExperiment(ctx context.Context, experimentID string) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/experiments/restore", nil,
		&api.RestoreExperimentRequest{ExperimentID: experimentID}, nil)
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func (c *Client) CreateRun(ctx context.Context, experimentID, name string, startTime int64, tags []api.RunTag) (*api.Run, error) {
	var out api.CreateRunResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/runs/create", nil, &api.CreateRunRequest{
		ExperimentID: experimentID,
		RunName:      name,
		StartTime:    startTime,
		Tags:         tags,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Run, nil
}

func (c *Client) GetRun(ctx context.Context, runID string) (*api.Run, error) {
	var out api.GetRunResponse
	query := url.Values{"run_id": {runID}}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/runs/get", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Run, nil
}

func (c *Client) UpdateRun(ctx context.Context, runID string, status api.RunStatus, endTime int64) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/update", nil, &api.UpdateRunRequest{
		RunID:   runID,
		Status:  status,
		EndTime: endTime,
	}, nil)
}

func (c *Client) SearchRuns(ctx context.Context, experimentIDs []string, filter string, maxResults int) ([]*api.Run, error) {
	var out api.SearchRunsResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/runs/search", nil, &api.SearchRunsRequest{
		ExperimentIDs: experimentIDs,
		Filter:        filter,
		MaxResults:    maxResults,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// ---------------------------------------------------------------------------
// Run data
// ---------------------------------------------------------------------------

func (c *Client) LogMetric(ctx context.Context, runID string, m api.Metric) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/log-metric", nil, &api.LogMetricRequest{
		RunID:     runID,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Timestamp,
		Step:      m.Step,
	}, nil)
}

func (c *Client) LogParam(ctx context.Context, runID string, p api.Param) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/log-parameter", nil, &api.LogParamRequest{
		RunID: runID,
		Key:   p.Key,
		Value: p.Value,
	}, nil)
}

func (c *Client) SetTag(ctx context.Context, runID string, t api.RunTag) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/set-tag", nil, &api.SetTagRequest{
		RunID: runID,
		Key:   t.Key,
		Value: t.Value,
	}, nil)
}

func (c *Client) LogBatch(ctx context.Context, runID string, metrics []api.Metric, params []api.Param, tags []api.RunTag) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/log-batch", nil, &api.LogBatchRequest{
		RunID:   runID,
		Metrics: metrics,
		Params:  params,
		Tags:    tags,
	}, nil)
}

func (c *Client) GetMetricHistory(ctx context.Context, runID, key string) ([]api.Metric, error) {
	var out api.GetMetricHistoryResponse
	query := url.Values{"run_id": {runID}, "metric_key": {key}}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/metrics/get-history", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Metrics, nil
}

// ---------------------------------------------------------------------------
// Model registry
// ---------------------------------------------------------------------------

func (c *Client) CreateRegisteredModel(ctx context.Context, name string) error {
	var out api.CreateRegisteredModelResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/registered-models/create", nil,
		&api.CreateRegisteredModelRequest{Name: name}, &out)
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		return err
	}
	return nil
}

func (c *Client) CreateModelVersion(ctx context.Context, name, source, runID string) (*api.ModelVersion, error) {
	var out api.CreateModelVersionResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/model-versions/create", nil, &api.CreateModelVersionRequest{
		Name:   name,
		Source: source,
		RunID:  runID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.ModelVersion, nil
}

func (c *Client) SearchModelVersions(ctx context.Context, filter string) ([]*api.ModelVersion, error) {
	var out api.SearchModelVersionsResponse
	query := url.Values{}
	if filter != "" {
		query.Set("filter", filter)
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/model-versions/search", query, nil, &out); err != nil {
		return nil, err
	}
	return out.ModelVersions, nil
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// artifactRoot resolves the run's artifact location to a path below the
// server's artifact proxy. Results are cached per run.
func (c *Client) artifactRoot(ctx context.Context, runID string) (string, error) {
	c.mu.Lock()
	root, ok := c.roots[runID]
	c.mu.Unlock()
	if ok {
		return root, nil
	}

	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	uri := run.Info.ArtifactURI
	const scheme = "mlflow-artifacts:/"
	if !strings.HasPrefix(uri, scheme) {
		return "", fmt.Errorf("run %s: artifact URI %q is not served by the tracking server's artifact proxy", runID, uri)
	}
	root = strings.Trim(strings.TrimPrefix(uri, scheme), "/")

	c.mu.Lock()
	c.roots[runID] = root
	c.mu.Unlock()
	return root, nil
}

func (c *Client) artifactURL(root, path string) string {
	u := c.baseURL + artifactPrefix + "/" + root
	if path != "" {
		u += "/" + strings.TrimLeft(path, "/")
	}
	return u
}

func (c *Client) UploadArtifact(ctx context.Context, runID, path string, r io.Reader) error {
	root, err := c.artifactRoot(ctx, runID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.artifactURL(root, path), r)
	if err != nil {
		return fmt.Errorf("creating artifact upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading artifact %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapWireError(resp)
	}
	return nil
}

func (c *Client) DownloadArtifact(ctx context.Context, runID, path string) (io.ReadCloser, error) {
	root, err := c.artifactRoot(ctx, runID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.artifactURL(root, path), nil)
	if err != nil {
		return nil, fmt.Errorf("creating artifact download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading artifact %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, mapWireError(resp)
	}
	return resp.Body, nil
}

func (c *Client) ListArtifacts(ctx context.Context, runID, path string) ([]api.FileInfo, error) {
	root, err := c.artifactRoot(ctx, runID)
	if err != nil {
		return nil, err
	}
	p := root
	if path != "" {
		p += "/" + strings.TrimLeft(path, "/")
	}
	var out api.ListArtifactsResponse
	query := url.Values{"path": {p}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+artifactPrefix+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating artifact list request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapWireError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing artifact list response: %w", err)
	}
	return out.Files, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracking server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tracking server health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
