package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (o *recordingObserver) ObserveRequest(_, _ string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, observer Observer) (*Client, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		Platform:   "github",
		HTTPClient: server.Client(),
		Retry:      RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Observer:   observer,
	}), server.URL
}

func getRequest(url string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url+"/orgs/acme", nil)
	}
}

func TestDoRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	observer := &recordingObserver{}
	client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"login":"acme"}`))
	}, observer)

	resp, err := client.Do(context.Background(), getRequest(url))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, `{"login":"acme"}`, string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{502, 502, 200}, observer.statuses)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}, nil)

	_, err := client.Do(context.Background(), getRequest(url))
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusServiceUnavailable, rerr.StatusCode)
	assert.Equal(t, "maintenance", rerr.Body)
	assert.True(t, IsTransient(err))
	assert.False(t, IsConflict(err))
}

func TestDoDoesNotRetryDefinitiveAnswers(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "not found", status: http.StatusNotFound},
		{name: "unprocessable", status: http.StatusUnprocessableEntity},
		{name: "forbidden", status: http.StatusForbidden},
		{name: "server error", status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}, nil)

			resp, err := client.Do(context.Background(), getRequest(url))
			require.NoError(t, err)
			assert.False(t, resp.OK())
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, int32(1), calls.Load())

			rerr := resp.Err()
			assert.Equal(t, "github", rerr.Platform)
			assert.Equal(t, "/orgs/acme", rerr.Path)
			assert.Equal(t, tt.status == http.StatusNotFound, IsNotFound(rerr))
		})
	}
}

func postRequest(url string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, url+"/repos/acme/tpl/generate", strings.NewReader(`{"name":"svc"}`))
	}
}

func TestDoDoesNotRetryPostOnGatewayError(t *testing.T) {
	var calls atomic.Int32
	client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"name already exists on this account"}`))
	}, nil)

	_, err := client.Do(context.Background(), postRequest(url))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, IsTransient(err))
	assert.False(t, IsConflict(err))

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusBadGateway, rerr.StatusCode)
}

func TestDoRetriesPostOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}, nil)

	resp, err := client.Do(context.Background(), postRequest(url))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTruncateKeepsRunes(t *testing.T) {
	body := strings.Repeat("a", maxErrorBody-1) + "é" + strings.Repeat("b", 10)
	got := truncate([]byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxErrorBody-1)+"...", got)

	assert.Equal(t, "short", truncate([]byte("  short\n")))
}

func TestDoTransportErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	observer := &recordingObserver{}
	client := New(Config{
		Platform: "sonarqube",
		Retry:    RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Observer: observer,
	})
	_, err := client.Do(context.Background(), getRequest(url))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, []int{0, 0}, observer.statuses)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	var calls atomic.Int32
	client, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Do(ctx, getRequest(url))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

func TestConflictMarker(t *testing.T) {
	err := (&Error{Platform: "github", Method: "POST", Path: "/repos/t/tpl/generate", StatusCode: 422}).AsConflict()
	assert.True(t, IsConflict(err))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "HTTP 422")
}
