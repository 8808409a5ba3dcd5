package mirror

import (
	"context"
	"crypto/md5" //nolint:gosec // Drive publishes MD5 checksums; this is integrity, not security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"

	"github.com/vikynandha-zz/google-drive-backup/internal/gdrive"
)

// DefaultExportMIME is the rendition native documents are saved as.
const DefaultExportMIME = "application/pdf"

const (
	filePerms = 0o644
	dirPerms  = 0o755
)

// partialSuffix marks a download in progress.
const partialSuffix = ".partial"

// Fetch outcomes other than success.
var (
	// ErrNoContent means the entry has neither a download URL nor an export
	// link for the configured format. Nothing is fetched.
	ErrNoContent = errors.New("mirror: no downloadable content")

	// ErrChecksumMismatch means the fetched bytes do not hash to the
	// entry's md5Checksum.
	ErrChecksumMismatch = errors.New("mirror: checksum mismatch")

	// ErrWriteFailed wraps the filesystem error when the local copy cannot
	// be written.
	ErrWriteFailed = errors.New("mirror: writing local file failed")
)

// StatusError reports a content request the server answered with a
// non-success status. It is not retried.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mirror: content request rejected: %s", e.Status)
}

// FetcherOptions tunes a Fetcher. Zero values select defaults.
type FetcherOptions struct {
	ExportMIME string        // export format for native documents
	Attempts   int           // total tries for incomplete or corrupt transfers
	BaseDelay  time.Duration // first retry delay
	MaxDelay   time.Duration // retry delay cap
}

// Fetcher downloads a single entry's content to a local file.
type Fetcher struct {
	fs     afero.Fs
	source ContentSource
	opts   FetcherOptions
	logger *slog.Logger
}

// NewFetcher creates a Fetcher writing through fsys.
func NewFetcher(fsys afero.Fs, source ContentSource, opts FetcherOptions, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.ExportMIME == "" {
		opts.ExportMIME = DefaultExportMIME
	}

	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	return &Fetcher{
		fs:     fsys,
		source: source,
		opts:   opts,
		logger: logger,
	}
}

// ContentURL returns where item's bytes come from: the export link for
// native documents, the download URL otherwise. Empty means none.
func (f *Fetcher) ContentURL(item *gdrive.Item) string {
	if item.IsNativeDocument() {
		return item.ExportLink(f.opts.ExportMIME)
	}

	return item.DownloadURL
}

// Fetch downloads item to destPath and stamps it with the remote
// modification time. A nil return means the local copy is complete.
//
// Bytes are streamed into a hidden ".partial" sibling which replaces
// destPath only once its length and checksum are verified, so a failed or
// interrupted transfer never leaves a truncated file under the real name.
//
// Truncated transfers and checksum mismatches are retried up to the
// configured attempt count; the last attempt's outcome is returned.
// Rejected requests, missing content, and write failures are returned
// immediately, as are authentication failures.
func (f *Fetcher) Fetch(ctx context.Context, item *gdrive.Item, destPath string) error {
	url := f.ContentURL(item)
	if url == "" {
		return fmt.Errorf("%w: %q (%s)", ErrNoContent, item.Title, item.MimeType)
	}

	partial := partialPath(destPath)

	written, err := f.fetchVerified(ctx, item, url, partial)
	if err != nil {
		return err
	}

	if err := f.fs.Chtimes(partial, item.ModifiedAt, item.ModifiedAt); err != nil {
		f.logger.Warn("setting modification time failed",
			slog.String("path", destPath),
			slog.String("error", err.Error()),
		)
	}

	if err := f.fs.Rename(partial, destPath); err != nil {
		f.discard(partial)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	f.logger.Debug("file written",
		slog.String("path", destPath),
		slog.Int64("bytes", written),
	)

	return nil
}

// partialPath is where a download is staged before it replaces path.
func partialPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+partialSuffix)
}

func (f *Fetcher) fetchVerified(ctx context.Context, item *gdrive.Item, url, partial string) (int64, error) {
	var (
		written int64
		attempt int
	)

	b := newBackoff(f.opts.Attempts, f.opts.BaseDelay, f.opts.MaxDelay)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++

		content, err := f.source.FetchContent(ctx, url)
		if err != nil {
			return f.retryIncomplete(item, attempt, err)
		}

		if !content.OK() {
			f.logger.Error("content request rejected",
				slog.String("item_id", item.ID),
				slog.Int("status", content.StatusCode),
				slog.String("status_text", content.Status),
			)

			return &StatusError{StatusCode: content.StatusCode, Status: content.Status}
		}

		n, err := f.download(content, item, partial)
		if err != nil {
			f.discard(partial)

			if errors.Is(err, ErrChecksumMismatch) {
				f.logger.Warn("checksum mismatch",
					slog.String("item_id", item.ID),
					slog.Int("attempt", attempt),
					slog.Int("max_attempts", f.opts.Attempts),
				)

				return retry.RetryableError(err)
			}

			return f.retryIncomplete(item, attempt, err)
		}

		written = n

		return nil
	})
	if err != nil {
		return 0, err
	}

	if attempt > 1 {
		f.logger.Info("transfer succeeded after retry",
			slog.String("item_id", item.ID),
			slog.Int("attempts", attempt),
		)
	}

	return written, nil
}

// retryIncomplete marks truncated transfers retryable and passes every
// other error through unchanged.
func (f *Fetcher) retryIncomplete(item *gdrive.Item, attempt int, err error) error {
	if !errors.Is(err, gdrive.ErrIncompleteTransfer) {
		return err
	}

	f.logger.Warn("incomplete transfer",
		slog.String("item_id", item.ID),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", f.opts.Attempts),
		slog.String("error", err.Error()),
	)

	return retry.RetryableError(err)
}

// download streams content into path, hashing as it goes, and checks the
// byte count and checksum. It closes content.Body.
func (f *Fetcher) download(content *gdrive.Content, item *gdrive.Item, path string) (int64, error) {
	defer content.Body.Close()

	file, err := f.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerms)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	hash := md5.New() //nolint:gosec // see import

	n, err := io.Copy(&fileWriter{file}, io.TeeReader(content.Body, hash))
	if err != nil {
		file.Close()

		if errors.Is(err, ErrWriteFailed) {
			return n, err
		}

		return n, fmt.Errorf("%w: %w", gdrive.ErrIncompleteTransfer, err)
	}

	if err := file.Close(); err != nil {
		return n, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	if content.Length >= 0 && n != content.Length {
		return n, fmt.Errorf("%w: got %d of %d bytes", gdrive.ErrIncompleteTransfer, n, content.Length)
	}

	return n, verifyChecksum(item, hash.Sum(nil))
}

// fileWriter tags write errors so they are not mistaken for a broken
// download.
type fileWriter struct {
	file afero.File
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	return n, nil
}

// discard removes a staged download. A missing file is fine.
func (f *Fetcher) discard(path string) {
	if err := f.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.logger.Warn("removing partial download failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// verifyChecksum compares the MD5 digest of the fetched bytes against the
// entry's md5Checksum. Exports have no checksum and always pass.
func verifyChecksum(item *gdrive.Item, sum []byte) error {
	if item.MD5Checksum == "" || item.IsNativeDocument() {
		return nil
	}

	got := hex.EncodeToString(sum)

	if !strings.EqualFold(got, item.MD5Checksum) {
		return fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, item.MD5Checksum, got)
	}

	return nil
}
