// Package remote is the HTTP call policy shared by the platform clients:
// bounded exponential backoff for transient failures, no retries for
// definitive answers, and a single error type for everything else.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxResponseBody = 4 << 20

// Observer receives one call per HTTP attempt. status is 0 when the
// transport failed before a response arrived.
type Observer interface {
	ObserveRequest(platform, method string, status int, elapsed time.Duration)
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

type Config struct {
	Platform   string
	HTTPClient *http.Client
	Retry      RetryPolicy
	Observer   Observer
}

type Client struct {
	platform   string
	httpClient *http.Client
	retry      RetryPolicy
	observer   Observer
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = DefaultRetryPolicy().MaxDelay
	}
	return &Client{
		platform:   cfg.Platform,
		httpClient: httpClient,
		retry:      retry,
		observer:   cfg.Observer,
	}
}

func (c *Client) Platform() string {
	return c.platform
}

type Response struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte

	platform string
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err converts a non-success response into an *Error.
func (r *Response) Err() *Error {
	return &Error{
		Platform:   r.platform,
		Method:     r.Method,
		Path:       r.Path,
		StatusCode: r.StatusCode,
		Body:       truncate(r.Body),
	}
}

// RequestFunc builds a fresh request for every attempt so bodies can be
// replayed.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Do executes the request, retrying transient failures. POST requests are
// retried on transport errors and 429 only. Any HTTP status
// that is not transient is returned as a Response for the caller to
// interpret. Exhausted transient failures come back as *Error wrapping the
// last *TransientError.
func (c *Client) Do(ctx context.Context, newRequest RequestFunc) (*Response, error) {
	var (
		resp    *Response
		method  string
		path    string
		attempt int
	)
	operation := func() error {
		attempt++
		req, err := newRequest(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: failed to build request: %w", c.platform, err))
		}
		method, path = req.Method, req.URL.Path

		start := time.Now()
		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			c.observe(method, 0, time.Since(start))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return &TransientError{Method: method, Path: path, Err: err}
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
		c.observe(method, httpResp.StatusCode, time.Since(start))
		if err != nil {
			return &TransientError{Method: method, Path: path, Err: fmt.Errorf("failed to read response body: %w", err)}
		}
		resp = &Response{
			Method:     method,
			Path:       path,
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       body,
			platform:   c.platform,
		}
		if isTransientStatus(httpResp.StatusCode) {
			terr := &TransientError{Method: method, Path: path, StatusCode: httpResp.StatusCode}
			// A gateway error on a POST may hide a create that went through.
			if !retryableStatus(method, httpResp.StatusCode) {
				return backoff.Permanent(terr)
			}
			return terr
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		slog.WarnContext(ctx, "retrying remote call",
			"platform", c.platform,
			"attempt", attempt,
			"backoff", next,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.backOff(), ctx), notify); err != nil {
		var terr *TransientError
		if errors.As(err, &terr) {
			rerr := &Error{
				Platform:   c.platform,
				Method:     terr.Method,
				Path:       terr.Path,
				StatusCode: terr.StatusCode,
				Err:        fmt.Errorf("gave up after %d attempt(s): %w", attempt, terr),
			}
			if resp != nil && terr.StatusCode != 0 {
				rerr.Body = truncate(resp.Body)
			}
			return nil, rerr
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.BaseDelay
	b.MaxInterval = c.retry.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.retry.MaxAttempts-1))
}

func (c *Client) observe(method string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(c.platform, method, status, elapsed)
	}
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryableStatus(method string, status int) bool {
	if method != http.MethodPost {
		return true
	}
	return status == http.StatusTooManyRequests
}
