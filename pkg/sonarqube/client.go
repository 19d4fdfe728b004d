// Package sonarqube is a client for the SonarQube Web API endpoints used to
// manage analysis projects and their analysis tokens.
package sonarqube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kazz187/provisioner/pkg/remote"
)

const Platform = "sonarqube"

type Config struct {
	// BaseURL is the server root, e.g. https://sonar.example.com. Must use HTTPS.
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Retry      remote.RetryPolicy
	Observer   remote.Observer
}

type Client struct {
	baseURL string
	token   string
	remote  *remote.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("sonarqube: API client requires HTTPS (got %q)", baseURL)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("sonarqube: token is required")
	}
	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		remote: remote.New(remote.Config{
			Platform:   Platform,
			HTTPClient: cfg.HTTPClient,
			Retry:      cfg.Retry,
			Observer:   cfg.Observer,
		}),
	}, nil
}

// ProjectKey derives the analysis project key for a repository name.
func ProjectKey(repo string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(repo)), " ", "-")
}

// TokenName is the name of the analysis token issued for a project.
func TokenName(projectKey string) string {
	return projectKey + "_analysis_token"
}

// get sends query parameters; post sends them form-encoded.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*remote.Response, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return c.send(ctx, http.MethodGet, target, "")
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*remote.Response, error) {
	return c.send(ctx, http.MethodPost, c.baseURL+path, form.Encode())
}

func (c *Client) send(ctx context.Context, method, target, form string) (*remote.Response, error) {
	return c.remote.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if form != "" {
			body = strings.NewReader(form)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		return req, nil
	})
}

func decode(resp *remote.Response, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("sonarqube: failed to decode %s %s response: %w", resp.Method, resp.Path, err)
	}
	return nil
}

// isAlreadyExists matches the validation message SonarQube returns for a
// duplicate key.
func isAlreadyExists(resp *remote.Response) bool {
	return resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(string(resp.Body)), "already exists")
}

type Project struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
}

// CreateProject creates an analysis project. A duplicate key yields an
// error matching remote.ErrConflict.
func (c *Client) CreateProject(ctx context.Context, key, name string) (*Project, error) {
	resp, err := c.post(ctx, "/api/projects/create", url.Values{
		"project": {key},
		"name":    {name},
	})
	if err != nil {
		return nil, err
	}
	if isAlreadyExists(resp) {
		return nil, resp.Err().AsConflict()
	}
	if !resp.OK() {
		return nil, resp.Err()
	}
	var body struct {
		Project Project `json:"project"`
	}
	if err := decode(resp, &body); err != nil {
		return nil, err
	}
	return &body.Project, nil
}

// DeleteProject removes the project. deleted is false when it did not exist.
func (c *Client) DeleteProject(ctx context.Context, key string) (deleted bool, err error) {
	resp, err := c.post(ctx, "/api/projects/delete", url.Values{"project": {key}})
	if err != nil {
		return false, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.OK():
		return true, nil
	}
	return false, resp.Err()
}

type Status struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

func (s Status) Up() bool {
	return s.Status == "UP"
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	resp, err := c.get(ctx, "/api/system/status", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err()
	}
	var status Status
	if err := decode(resp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
