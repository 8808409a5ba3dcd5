package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// staticToken is a test TokenSource that returns a fixed token.
type staticToken string

func (t staticToken) Token() (string, error) {
	return string(t), nil
}

// errToken is a test TokenSource that always fails with err.
type errToken struct {
	err   error
	calls atomic.Int32
}

func (e *errToken) Token() (string, error) {
	e.calls.Add(1)
	return "", e.err
}

// newTestClient creates a Client pointing at the given httptest server
// with instant retry sleeps for fast tests.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c, err := NewClient(url, http.DefaultClient, staticToken("test-token"), slog.Default(), "test-agent")
	require.NoError(t, err)

	c.sleepFunc = noopSleep

	return c
}

const folderJSON = `{"id":"0AAbc","title":"My Drive","mimeType":"application/vnd.google-apps.folder","modifiedDate":"2013-02-11T09:30:12.512Z"}`

func TestCall_SendsTokenAndUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		fmt.Fprint(w, folderJSON)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	item, err := client.GetEntry(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "My Drive", item.Title)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(DefaultBaseURL, nil, staticToken("t"), nil, "")
	require.NoError(t, err)

	assert.NotNil(t, c.svc)
	assert.NotNil(t, c.logger)
	assert.Equal(t, DefaultBaseURL+"/", c.svc.BasePath)

	transport, ok := c.httpClient.Transport.(*authTransport)
	require.True(t, ok)
	assert.Equal(t, DefaultUserAgent, transport.userAgent)
	assert.Equal(t, http.DefaultTransport, transport.base)
}

func TestNewClient_KeepsCallerTimeouts(t *testing.T) {
	base := &http.Client{Timeout: 42 * time.Second, Transport: http.DefaultTransport}

	c, err := NewClient(DefaultBaseURL, base, staticToken("t"), nil, "ua")
	require.NoError(t, err)

	assert.Equal(t, 42*time.Second, c.httpClient.Timeout)
	assert.Equal(t, http.DefaultTransport, base.Transport, "caller's client is not modified")
}

func TestCall_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		reason   string
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"code":400,"message":"Invalid query","errors":[{"reason":"invalid"}]}}`, ErrBadRequest, "invalid"},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":401,"message":"Invalid Credentials","errors":[{"reason":"authError"}]}}`, ErrUnauthorized, "authError"},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"message":"Insufficient permissions","errors":[{"reason":"insufficientFilePermissions"}]}}`, ErrForbidden, "insufficientFilePermissions"},
		{"not found", http.StatusNotFound, `{"error":{"code":404,"message":"File not found: x","errors":[{"reason":"notFound"}]}}`, ErrNotFound, "notFound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			_, err := client.GetEntry(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.reason, apiErr.Reason)
			assert.Contains(t, apiErr.Error(), tt.reason)
			assert.Equal(t, int32(1), calls.Load(), "permanent errors are not retried")
		})
	}
}

func TestCall_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("plain not found"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetEntry(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Empty(t, apiErr.Reason)
	assert.Equal(t, "plain not found", apiErr.Message)
	assert.Equal(t, "gdrive: HTTP 404: plain not found", apiErr.Error())
}

func TestCall_RetryOn5xx(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		fmt.Fprint(w, folderJSON)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetEntry(context.Background(), "root")
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
}

func TestCall_RetryOnUserRateLimit(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"User Rate Limit Exceeded","errors":[{"reason":"userRateLimitExceeded"}]}}`))

			return
		}

		fmt.Fprint(w, folderJSON)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetEntry(context.Background(), "root")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_RateLimitExhaustedIsThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Rate Limit Exceeded","errors":[{"reason":"rateLimitExceeded"}]}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetEntry(context.Background(), "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThrottled)
	assert.True(t, IsTransient(err))
}

func TestCall_MaxRetriesExhausted(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetEntry(context.Background(), "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestCall_RetryAfterHeader(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		fmt.Fprint(w, folderJSON)
	}))
	defer srv.Close()

	var slept []time.Duration

	client := newTestClient(t, srv.URL)
	client.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := client.GetEntry(context.Background(), "root")
	require.NoError(t, err)

	require.Len(t, slept, 1)
	assert.Equal(t, 7*time.Second, slept[0])
}

func TestCall_NetworkErrorRetried(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", http.DefaultClient, staticToken("t"), slog.Default(), "")
	require.NoError(t, err)

	var sleeps int
	client.sleepFunc = func(_ context.Context, _ time.Duration) error {
		sleeps++
		return nil
	}

	_, err = client.GetEntry(context.Background(), "root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after")
	assert.Equal(t, maxRetries, sleeps)
	assert.True(t, IsTransient(err))
}

func TestCall_MalformedResponseNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{not json`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetEntry(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCall_RevokedCredentialsNotRetried(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, folderJSON)
	}))
	defer srv.Close()

	tok := &errToken{err: fmt.Errorf("%w: invalid_grant", ErrCredentialsRevoked)}

	client, err := NewClient(srv.URL, http.DefaultClient, tok, slog.Default(), "")
	require.NoError(t, err)

	client.sleepFunc = noopSleep

	_, err = client.GetEntry(context.Background(), "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialsRevoked)
	assert.True(t, IsAuthFailure(err))
	assert.Equal(t, int32(1), tok.calls.Load())
	assert.Zero(t, hits.Load())
}

func TestCall_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())

	client := newTestClient(t, srv.URL)
	client.sleepFunc = func(_ context.Context, _ time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := client.GetEntry(ctx, "root")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewAPIError(t *testing.T) {
	throttled := newAPIError(&googleapi.Error{
		Code:    http.StatusForbidden,
		Message: "User Rate Limit Exceeded",
		Errors:  []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
	})
	assert.ErrorIs(t, throttled, ErrThrottled)
	assert.Equal(t, "userRateLimitExceeded", throttled.Reason)

	teapot := newAPIError(&googleapi.Error{Code: http.StatusTeapot, Body: " short and stout \n"})
	assert.Contains(t, teapot.Err.Error(), "unexpected status 418")
	assert.Equal(t, "short and stout", teapot.Message)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"throttled", &APIError{StatusCode: 429, Err: ErrThrottled}, true},
		{"server error", &APIError{StatusCode: 503, Err: ErrServerError}, true},
		{"not found", &APIError{StatusCode: 404, Err: ErrNotFound}, false},
		{"bad request", &APIError{StatusCode: 400, Err: ErrBadRequest}, false},
		{"unauthorized", &APIError{StatusCode: 401, Err: ErrUnauthorized}, false},
		{"revoked", fmt.Errorf("refresh: %w", ErrCredentialsRevoked), false},
		{"malformed", fmt.Errorf("%w: files.get", ErrMalformedResponse), false},
		{"canceled", fmt.Errorf("gdrive: request canceled: %w", context.Canceled), false},
		{"network", errors.New("connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestCalcBackoff_Bounds(t *testing.T) {
	c := newTestClient(t, "http://unused")

	for attempt := range 10 {
		d := c.calcBackoff(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	}
}

func TestTimeSleep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := timeSleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
