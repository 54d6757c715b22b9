// Package coolify is a thin typed client for the Coolify REST API, the
// external platform that hosts the deployed applications.
package coolify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultRequestTimeout bounds a single API call.
	DefaultRequestTimeout = 30 * time.Second

	// MaxResponseBytes caps how much of an upstream response is read.
	MaxResponseBytes = 4_000_000 // 4 MB
)

// APIError is returned when the platform answers with a non-2xx status.
// The status code and body are preserved so the caller can translate them.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coolify API error: status %d: %s", e.StatusCode, e.Body)
}

// Client calls the Coolify API with bearer-token authentication.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient creates a client for the given Coolify instance.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: DefaultRequestTimeout},
	}
}

// BaseURL returns the configured Coolify base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateProject creates a project and returns its identity. Some Coolify
// versions answer with the full project list instead of the created project;
// in that case the most recent project with a matching name is taken.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	payload := map[string]string{
		"name":        name,
		"description": description,
	}

	var raw json.RawMessage
	if err := c.post(ctx, "/api/v1/projects", payload, &raw); err != nil {
		return nil, err
	}

	if len(raw) > 0 && raw[0] == '[' {
		var all []Project
		if err := json.Unmarshal(raw, &all); err != nil {
			return nil, fmt.Errorf("decoding project list: %w", err)
		}
		if len(all) == 0 {
			return nil, fmt.Errorf("project list response is empty")
		}
		for i := len(all) - 1; i >= 0; i-- {
			if all[i].Name == name {
				return &all[i], nil
			}
		}
		return &all[len(all)-1], nil
	}

	var proj Project
	if err := json.Unmarshal(raw, &proj); err != nil {
		return nil, fmt.Errorf("decoding project: %w", err)
	}
	return &proj, nil
}

// GetProject fetches a project, including its environments.
func (c *Client) GetProject(ctx context.Context, uuid string) (*Project, error) {
	var proj Project
	if err := c.get(ctx, "/api/v1/projects/"+uuid, &proj); err != nil {
		return nil, err
	}
	return &proj, nil
}

// ListApplications returns the raw application list. The façade passes it
// through without reshaping.
func (c *Client) ListApplications(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/v1/applications", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CreateApplication creates a public (git-based) application.
func (c *Client) CreateApplication(ctx context.Context, req *ApplicationRequest) (*Application, error) {
	var app Application
	if err := c.post(ctx, "/api/v1/applications/public", req, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// SetEnvVar sets one environment variable on an application.
func (c *Client) SetEnvVar(ctx context.Context, appUUID, key, value string) (*EnvVar, error) {
	payload := map[string]interface{}{
		"key":        key,
		"value":      value,
		"is_preview": false,
		"is_literal": true,
	}

	var ev EnvVar
	if err := c.post(ctx, "/api/v1/applications/"+appUUID+"/envs", payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Deploy triggers a deployment for an application.
func (c *Client) Deploy(ctx context.Context, appUUID string) error {
	payload := map[string]string{"uuid": appUUID}
	return c.post(ctx, "/api/v1/deploy", payload, nil)
}

// ListDeployments returns the deployments for an application, most recent
// first.
func (c *Client) ListDeployments(ctx context.Context, appUUID string) ([]Deployment, error) {
	var deployments []Deployment
	if err := c.get(ctx, "/api/v1/applications/"+appUUID+"/deployments", &deployments); err != nil {
		return nil, err
	}
	return deployments, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), out)
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	return nil
}
