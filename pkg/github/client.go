// Package github is a small typed client for the GitHub REST endpoints
// needed to stand up and tear down a project: template repositories,
// teams, team repository permissions and Actions secrets.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kazz187/provisioner/pkg/remote"
)

const (
	Platform          = "github"
	defaultBaseURL    = "https://api.github.com"
	defaultAPIVersion = "2022-11-28"
)

type Config struct {
	// BaseURL defaults to https://api.github.com. Must use HTTPS.
	BaseURL string
	// APIVersion is sent as X-GitHub-Api-Version.
	APIVersion string
	Token      string
	HTTPClient *http.Client
	Retry      remote.RetryPolicy
	Observer   remote.Observer
}

type Client struct {
	baseURL    string
	apiVersion string
	token      string
	remote     *remote.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		token:      cfg.Token,
		remote: remote.New(remote.Config{
			Platform:   Platform,
			HTTPClient: cfg.HTTPClient,
			Retry:      cfg.Retry,
			Observer:   cfg.Observer,
		}),
	}, nil
}

// do sends an authenticated request. The returned response may carry any
// non-transient status; callers decide what counts as success.
func (c *Client) do(ctx context.Context, method, path string, requestBody any) (*remote.Response, error) {
	var payload []byte
	if requestBody != nil {
		var err error
		payload, err = json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("github: failed to encode request body: %w", err)
		}
	}
	return c.remote.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", c.apiVersion)
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
}

// expect runs the request and fails with *remote.Error unless the status
// is one of ok. The decoded body goes to out when out is non-nil.
func (c *Client) expect(ctx context.Context, method, path string, requestBody, out any, ok ...int) (*remote.Response, error) {
	resp, err := c.do(ctx, method, path, requestBody)
	if err != nil {
		return nil, err
	}
	for _, status := range ok {
		if resp.StatusCode == status {
			if out != nil && len(resp.Body) > 0 {
				if err := decode(resp, out); err != nil {
					return nil, err
				}
			}
			return resp, nil
		}
	}
	return nil, resp.Err()
}

// remove issues a DELETE and reports whether anything was deleted. A 404
// means the resource is already gone.
func (c *Client) remove(ctx context.Context, path string) (bool, error) {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
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

func decode(resp *remote.Response, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("github: failed to decode %s %s response: %w", resp.Method, resp.Path, err)
	}
	return nil
}

func escapePath(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
