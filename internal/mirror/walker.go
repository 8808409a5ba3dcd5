package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"

	"github.com/vikynandha-zz/google-drive-backup/internal/gdrive"
)

// Walker defaults.
const (
	DefaultMaxDepth     = 64
	DefaultListAttempts = 5
)

// Options tunes a Walker. Zero values select defaults.
type Options struct {
	MaxDepth       int           // deepest folder visited; the root is depth 0
	ListAttempts   int           // total tries per folder listing
	RetryBaseDelay time.Duration // first retry delay
	RetryMaxDelay  time.Duration // retry delay cap
	Debug          bool          // log the remote tree as it is walked
}

// Summary counts the outcomes of one walk.
type Summary struct {
	Created        int
	Updated        int
	UpToDate       int
	Failed         int   // files that could not be fetched or written
	SkippedFolders int   // not created, not listed, or deeper than MaxDepth
	Bytes          int64 // written to disk
}

// Walker mirrors a remote folder tree onto a local filesystem.
type Walker struct {
	fs      afero.Fs
	lister  Lister
	fetcher *Fetcher
	opts    Options
	logger  *slog.Logger
	summary Summary
}

// NewWalker creates a Walker. fetcher must write through the same fsys.
func NewWalker(fsys afero.Fs, lister Lister, fetcher *Fetcher, opts Options, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	if opts.ListAttempts <= 0 {
		opts.ListAttempts = DefaultListAttempts
	}

	return &Walker{
		fs:      fsys,
		lister:  lister,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
	}
}

// Run resolves rootID and mirrors it into destination/<root title>.
// Failing to resolve the root is an error; after that only authentication
// failures are returned (see SyncFolder).
func (w *Walker) Run(ctx context.Context, rootID, destination string) error {
	w.summary = Summary{}

	root, err := w.getEntry(ctx, rootID)
	if err != nil {
		return fmt.Errorf("mirror: resolving root folder %q: %w", rootID, err)
	}

	if !root.IsFolder() {
		return fmt.Errorf("mirror: root %q (%s) is not a folder", rootID, root.Title)
	}

	w.logger.Info("sync started",
		slog.String("root_id", root.ID),
		slog.String("root_title", root.Title),
		slog.String("destination", destination),
	)

	if err := w.SyncFolder(ctx, root, destination, 0); err != nil {
		return err
	}

	w.logger.Info("sync finished",
		slog.String("root_id", root.ID),
		slog.Int("created", w.summary.Created),
		slog.Int("updated", w.summary.Updated),
		slog.Int("up_to_date", w.summary.UpToDate),
		slog.Int("failed", w.summary.Failed),
		slog.Int("skipped_folders", w.summary.SkippedFolders),
		slog.Int64("bytes", w.summary.Bytes),
	)

	return nil
}

// Summary returns the counts accumulated since the last Run started.
func (w *Walker) Summary() Summary {
	return w.summary
}

// SyncFolder mirrors folder and its subtree under localBase. Files come
// first, in listing order, then subfolders depth-first.
//
// Per-entry failures (a folder that cannot be created or listed, a file
// that cannot be fetched or written) are logged and the walk moves on to
// the next sibling. The only error returned is an authentication failure,
// which ends the whole walk because every later request would fail too.
func (w *Walker) SyncFolder(ctx context.Context, folder *gdrive.Item, localBase string, depth int) error {
	if depth > w.opts.MaxDepth {
		w.logger.Warn("folder deeper than max depth, not visited",
			slog.String("folder_id", folder.ID),
			slog.String("title", folder.Title),
			slog.Int("depth", depth),
			slog.Int("max_depth", w.opts.MaxDepth),
		)

		w.summary.SkippedFolders++

		return nil
	}

	dir := filepath.Join(localBase, Sanitize(folder.Title))

	if err := w.fs.MkdirAll(dir, dirPerms); err != nil {
		w.logger.Error("creating local folder failed, skipping subtree",
			slog.String("path", dir),
			slog.String("error", err.Error()),
		)

		w.summary.SkippedFolders++

		return nil
	}

	if w.opts.Debug {
		w.logger.Debug(treeLine(depth, "[] ", folder.Title))
	}

	children, err := w.listChildren(ctx, folder)
	if err != nil {
		if gdrive.IsAuthFailure(err) {
			return err
		}

		w.logger.Error("listing folder failed, skipping subtree",
			slog.String("folder_id", folder.ID),
			slog.String("path", dir),
			slog.String("error", err.Error()),
		)

		w.summary.SkippedFolders++

		return nil
	}

	files, folders := partition(children)

	for _, file := range files {
		if err := w.syncFile(ctx, file, dir, depth+1); err != nil {
			return err
		}
	}

	for _, sub := range folders {
		if err := w.SyncFolder(ctx, sub, dir, depth+1); err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) syncFile(ctx context.Context, item *gdrive.Item, dir string, depth int) error {
	target := filepath.Join(dir, Sanitize(item.Title))

	if w.opts.Debug {
		w.logger.Debug(treeLine(depth, "-- ", item.Title))
	}

	stale, exists, statErr := checkLocal(w.fs, item, target)
	if statErr != nil {
		w.logger.Warn("checking local file failed, downloading again",
			slog.String("path", target),
			slog.String("error", statErr.Error()),
		)
	}

	if !stale {
		w.logger.Debug("up to date", slog.String("path", target))
		w.summary.UpToDate++

		return nil
	}

	err := w.fetcher.Fetch(ctx, item, target)

	switch {
	case err == nil && exists:
		w.logger.Info("updated", slog.String("path", target), slog.String("item_id", item.ID))
		w.summary.Updated++
		w.countBytes(target)
	case err == nil:
		w.logger.Info("created", slog.String("path", target), slog.String("item_id", item.ID))
		w.summary.Created++
		w.countBytes(target)
	case gdrive.IsAuthFailure(err):
		return err
	default:
		w.logger.Error("download failed",
			slog.String("path", target),
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)

		w.summary.Failed++
	}

	return nil
}

func (w *Walker) countBytes(path string) {
	if info, err := w.fs.Stat(path); err == nil {
		w.summary.Bytes += info.Size()
	}
}

// listChildren lists a folder, retrying transient failures (throttling,
// server and network errors) with bounded backoff.
func (w *Walker) listChildren(ctx context.Context, folder *gdrive.Item) ([]gdrive.Item, error) {
	var items []gdrive.Item

	err := w.withRetry(ctx, "listing folder", folder.ID, func(ctx context.Context) error {
		var err error
		items, err = w.lister.ListChildren(ctx, folder.ID)

		return err
	})

	return items, err
}

func (w *Walker) getEntry(ctx context.Context, id string) (*gdrive.Item, error) {
	var item *gdrive.Item

	err := w.withRetry(ctx, "getting entry", id, func(ctx context.Context) error {
		var err error
		item, err = w.lister.GetEntry(ctx, id)

		return err
	})

	return item, err
}

func (w *Walker) withRetry(ctx context.Context, op, id string, fn func(context.Context) error) error {
	attempt := 0
	b := newBackoff(w.opts.ListAttempts, w.opts.RetryBaseDelay, w.opts.RetryMaxDelay)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !gdrive.IsTransient(err) {
			return err
		}

		w.logger.Warn(op+" failed",
			slog.String("id", id),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", w.opts.ListAttempts),
			slog.String("error", err.Error()),
		)

		return retry.RetryableError(err)
	})
}

// partition splits children into files and folders, keeping listing order.
// Trashed entries are dropped.
func partition(children []gdrive.Item) (files, folders []*gdrive.Item) {
	for i := range children {
		child := &children[i]
		if child.Trashed {
			continue
		}

		if child.IsFolder() {
			folders = append(folders, child)
		} else {
			files = append(files, child)
		}
	}

	return files, folders
}

// treeLine renders one entry of the --debug tree view.
func treeLine(depth int, marker, title string) string {
	return strings.Repeat("    ", depth) + marker + title
}
