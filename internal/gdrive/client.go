package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultBaseURL is the Drive v2 REST endpoint.
const DefaultBaseURL = "https://www.googleapis.com/drive/v2"

// DefaultUserAgent is sent when the caller does not configure one.
const DefaultUserAgent = "google-drive-backup/0.1"

// Retry and backoff constants.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// per Go convention "accept interfaces, return structs".
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the Google Drive v2 API. Metadata calls go through the
// generated drive service and are retried here with exponential backoff;
// content downloads share the same authorized HTTP client.
type Client struct {
	svc        *drive.Service
	httpClient *http.Client // authorized; carries the bearer token
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Drive API client. baseURL is typically DefaultBaseURL;
// httpClient supplies the transport and timeouts, and token is consulted
// on every request.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	authed := *httpClient
	authed.Transport = &authTransport{base: base, token: token, userAgent: userAgent}

	svc, err := drive.NewService(context.Background(),
		option.WithHTTPClient(&authed),
		option.WithEndpoint(strings.TrimSuffix(baseURL, "/")+"/"),
	)
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating drive service: %w", err)
	}

	return &Client{
		svc:        svc,
		httpClient: &authed,
		logger:     logger,
		sleepFunc:  timeSleep,
	}, nil
}

// authTransport stamps each request with the current bearer token and the
// configured User-Agent.
type authTransport struct {
	base      http.RoundTripper
	token     TokenSource
	userAgent string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.token.Token()
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}

		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+tok)
	r.Header.Set("User-Agent", t.userAgent)

	return t.base.RoundTrip(r)
}

// call runs fn, a single Drive API request, retrying throttling, server
// errors and network failures. API errors come back as *APIError wrapping
// a sentinel; revoked credentials and cancellation are returned at once.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	var attempt int

	for {
		err := fn()
		if err == nil {
			c.logger.Debug("request succeeded", slog.String("op", op))
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("gdrive: request canceled: %w", ctx.Err())
		}

		// Refreshing revoked credentials will never succeed.
		if IsAuthFailure(err) {
			return err
		}

		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			reason := errorReason(gerr)

			if isRetryable(gerr.Code, reason) && attempt < maxRetries {
				backoff := c.retryBackoff(gerr, attempt)
				c.logger.Warn("retrying after HTTP error",
					slog.String("op", op),
					slog.Int("status", gerr.Code),
					slog.String("reason", reason),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return fmt.Errorf("gdrive: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			if attempt > 0 {
				c.logger.Error("request failed after retries",
					slog.String("op", op),
					slog.Int("status", gerr.Code),
					slog.Int("attempts", attempt+1),
				)
			}

			return newAPIError(gerr)
		}

		if isDecodeError(err) {
			return fmt.Errorf("%w: %s: %w", ErrMalformedResponse, op, err)
		}

		if attempt < maxRetries {
			backoff := c.calcBackoff(attempt)
			c.logger.Warn("retrying after network error",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return fmt.Errorf("gdrive: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		return fmt.Errorf("gdrive: %s failed after %d retries: %w", op, maxRetries, err)
	}
}

// isDecodeError reports whether err came from decoding a response body,
// which a retry will not fix.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(gerr *googleapi.Error, attempt int) time.Duration {
	if gerr.Code == http.StatusTooManyRequests && gerr.Header != nil {
		if ra := gerr.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
