// Package azureml provides the "azureml" connection provider. It resolves
// the MLflow tracking URI of an Azure Machine Learning workspace, either by
// deriving it from the workspace region or by querying the Azure Resource
// Manager API.
package azureml

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/connection"
)

const defaultBaseURL = "https://management.azure.com"

// Option keys and their environment fallbacks.
const (
	optSubscriptionID = "subscription_id"
	optResourceGroup  = "resource_group"
	optWorkspaceName  = "workspace_name"
	optRegion         = "region"

	envSubscriptionID = "AZUREML_SUBSCRIPTION_ID"
	envResourceGroup  = "AZUREML_RESOURCE_GROUP"
	envWorkspaceName  = "AZUREML_WORKSPACE_NAME"
	envRegion         = "AZUREML_REGION"
	envAccessToken    = "AZUREML_ACCESS_TOKEN"
)

// Conn implements connection.Connection for Azure ML workspaces.
//
// Required options (each falling back to its environment variable):
// subscription_id, resource_group, workspace_name. With the optional region
// option set the tracking URI is derived offline; otherwise the workspace is
// looked up through Azure Resource Manager using the bearer token from the
// "token" credential.
type Conn struct {
	// BaseURL overrides the Azure Resource Manager endpoint. Defaults to
	// https://management.azure.com.
	BaseURL string

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// If nil, a client with a 30s timeout is used.
	HTTPClient *http.Client
}

var _ connection.Connection = (*Conn)(nil)

func init() {
	connection.Register(&Conn{})
}

// Name returns the provider identifier.
func (c *Conn) Name() string {
	return "azureml"
}

// TrackingURI resolves the workspace tracking URI.
func (c *Conn) TrackingURI(ctx context.Context, credentials, options map[string]string) (string, error) {
	sub, err := connection.Value(options, optSubscriptionID, envSubscriptionID)
	if err != nil {
		return "", err
	}
	rg, err := connection.Value(options, optResourceGroup, envResourceGroup)
	if err != nil {
		return "", err
	}
	ws, err := connection.Value(options, optWorkspaceName, envWorkspaceName)
	if err != nil {
		return "", err
	}

	workspacePath := fmt.Sprintf("subscriptions/%s/resourceGroups/%s/providers/Microsoft.MachineLearningServices/workspaces/%s", sub, rg, ws)

	if region := connection.ValueDefault(options, optRegion, envRegion, ""); region != "" {
		uri := fmt.Sprintf("azureml://%s.api.azureml.ms/mlflow/v1.0/%s", region, workspacePath)
		slog.Debug("resolved azureml tracking URI from region", "region", region, "workspace", ws)
		return uri, nil
	}

	token, err := connection.Value(credentials, "token", envAccessToken)
	if err != nil {
		return "", err
	}
	if err := checkTokenExpiry(token); err != nil {
		return "", err
	}

	uri, err := c.lookupWorkspace(ctx, workspacePath, token)
	if err != nil {
		return "", err
	}
	slog.Debug("resolved azureml tracking URI from resource manager", "workspace", ws)
	return uri, nil
}

// lookupWorkspace queries Azure Resource Manager for the workspace and
// returns its mlFlowTrackingUri property.
func (c *Conn) lookupWorkspace(ctx context.Context, workspacePath, token string) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	base = strings.TrimRight(base, "/")

	url := fmt.Sprintf("%s/%s?api-version=2023-04-01", base, workspacePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("azureml: creating workspace request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("azureml: querying workspace: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("azureml: reading workspace response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// Fall through to decode.
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", api.NewPermissionDeniedError("azureml: workspace lookup rejected (status %d)", resp.StatusCode)
	case http.StatusNotFound:
		return "", api.NewNotFoundError("azureml: workspace not found: %s", workspacePath)
	default:
		return "", fmt.Errorf("azureml: workspace lookup returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var doc struct {
		Properties struct {
			MLFlowTrackingURI string `json:"mlFlowTrackingUri"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("azureml: parsing workspace response: %w", err)
	}
	if doc.Properties.MLFlowTrackingURI == "" {
		return "", fmt.Errorf("azureml: workspace response has no mlFlowTrackingUri")
	}
	return doc.Properties.MLFlowTrackingURI, nil
}

// checkTokenExpiry rejects bearer tokens whose JWT exp claim is in the past.
// Opaque tokens (anything that does not parse as a JWT) are passed through
// for the server to judge.
func checkTokenExpiry(token string) error {
	if strings.Count(token, ".") != 2 {
		return nil
	}
	parsed, _, err := jwtlib.NewParser().ParseUnverified(token, jwtlib.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return api.NewPermissionDeniedError("azureml: access token expired at %s", exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
