package gdrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxErrorBodyBytes bounds how much of a non-2xx content body is read for
// diagnostics.
const maxErrorBodyBytes = 4096

// FetchContent issues a single authenticated GET for a downloadUrl or
// exportLinks URL. There is no retry here: the caller decides what to do
// with a truncated body (ErrIncompleteTransfer while reading) or a non-2xx
// status (returned as Content with a nil error and no Body).
//
// The URL itself is never logged because export links carry query
// parameters that identify the document.
func (c *Client) FetchContent(ctx context.Context, rawURL string) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating content request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gdrive: content request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("gdrive: content request failed: %w", err)
	}

	content := &Content{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Length:     resp.ContentLength,
	}

	if !content.OK() {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()

		c.logger.Debug("content request rejected",
			slog.Int("status", resp.StatusCode),
		)

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: resp.Status, Err: ErrUnauthorized}
		}

		return content, nil
	}

	content.Body = &contentBody{rc: resp.Body}

	return content, nil
}

// contentBody reports a body that breaks off mid-stream as an incomplete
// transfer, so callers can tell it apart from their own write errors.
type contentBody struct {
	rc   io.ReadCloser
	read int64
}

func (b *contentBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.read += int64(n)

	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w after %d bytes: %w", ErrIncompleteTransfer, b.read, err)
	}

	return n, err
}

func (b *contentBody) Close() error {
	return b.rc.Close()
}
