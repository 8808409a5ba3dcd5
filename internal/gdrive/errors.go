// Package gdrive wraps the Google Drive v2 API for a read-only mirror:
// listing, metadata, content download, retry, error classification, and
// OAuth2 authentication.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gdrive: bad request")
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	ErrForbidden    = errors.New("gdrive: forbidden")
	ErrNotFound     = errors.New("gdrive: not found")
	ErrThrottled    = errors.New("gdrive: throttled")
	ErrServerError  = errors.New("gdrive: server error")
)

// ErrNotLoggedIn is returned when no credential cache exists.
var ErrNotLoggedIn = errors.New("gdrive: not logged in")

// ErrCredentialsRevoked is returned when the token endpoint refuses to
// refresh the cached credentials. It is terminal: the user has to
// re-authorize.
var ErrCredentialsRevoked = errors.New("gdrive: credentials revoked or expired")

// ErrMalformedResponse is returned when a successful API response cannot be
// decoded.
var ErrMalformedResponse = errors.New("gdrive: malformed response")

// ErrIncompleteTransfer is returned when a content body ends before all of
// its bytes arrived.
var ErrIncompleteTransfer = errors.New("gdrive: incomplete transfer")

// APIError wraps a sentinel error with the HTTP status code, the Drive error
// reason, and the API error message for debugging.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err means the run cannot continue without
// the user re-authorizing.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrCredentialsRevoked) ||
		errors.Is(err, ErrNotLoggedIn) ||
		errors.Is(err, ErrUnauthorized)
}

// errorReason returns the first reason Drive attached to the error, such
// as "userRateLimitExceeded", or "".
func errorReason(gerr *googleapi.Error) string {
	if len(gerr.Errors) == 0 {
		return ""
	}

	return gerr.Errors[0].Reason
}

// newAPIError classifies a Drive error response. A 403 carrying a rate
// limit reason is reported as ErrThrottled rather than ErrForbidden.
func newAPIError(gerr *googleapi.Error) *APIError {
	reason := errorReason(gerr)

	sentinel := classifyStatus(gerr.Code)
	if sentinel == nil {
		sentinel = fmt.Errorf("gdrive: unexpected status %d", gerr.Code)
	}

	if errors.Is(sentinel, ErrForbidden) && isRetryable(gerr.Code, reason) {
		sentinel = ErrThrottled
	}

	message := gerr.Message
	if message == "" {
		message = strings.TrimSpace(gerr.Body)
	}

	return &APIError{
		StatusCode: gerr.Code,
		Reason:     reason,
		Message:    message,
		Err:        sentinel,
	}
}

// IsTransient reports whether err may succeed if the whole operation is
// tried again later: throttling, server errors, and failures that never
// produced an API response. Anything else is permanent.
func IsTransient(err error) bool {
	if err == nil || IsAuthFailure(err) || errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errors.Is(apiErr.Err, ErrThrottled) || errors.Is(apiErr.Err, ErrServerError)
	}

	return true
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given response should be retried. Drive
// signals per-user rate limiting with 403 and a rate limit reason.
func isRetryable(code int, reason string) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case http.StatusForbidden:
		return reason == "userRateLimitExceeded" || reason == "rateLimitExceeded"
	default:
		return false
	}
}
