package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v2"
)

// listPageSize is the maxResults value for files.list requests.
// 1000 is the maximum allowed by the Drive v2 API.
const listPageSize = 1000

// modifiedDateLayout is the format Drive uses for modifiedDate.
const modifiedDateLayout = "2006-01-02T15:04:05.000Z"

// Timestamp validation bounds. Timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// Partial responses: only the File fields toItem reads.
const (
	fileFields = "id,title,mimeType,modifiedDate,downloadUrl,exportLinks,md5Checksum,fileSize,labels/trashed"
	listFields = "nextPageToken,items(" + fileFields + ")"
)

// toItem normalizes a Drive File resource into our Item type.
func toItem(f *drive.File, logger *slog.Logger) Item {
	item := Item{
		ID:          f.Id,
		Title:       f.Title,
		MimeType:    f.MimeType,
		ModifiedRaw: f.ModifiedDate,
		DownloadURL: f.DownloadUrl,
		ExportLinks: f.ExportLinks,
		MD5Checksum: f.Md5Checksum,
	}

	if f.Labels != nil {
		item.Trashed = f.Labels.Trashed
	}

	if f.FileSize < 0 {
		logger.Warn("invalid file size",
			slog.String("item_id", f.Id),
			slog.Int64("raw", f.FileSize),
		)
	} else {
		item.Size = f.FileSize
	}

	item.ModifiedAt = parseTimestamp(f.ModifiedDate, f.Id, logger)

	return item
}

// ParseModifiedDate parses a Drive modifiedDate value. The layout is fixed
// but any fractional second precision is accepted.
func ParseModifiedDate(raw string) (time.Time, error) {
	t, err := time.Parse(modifiedDateLayout, raw)
	if err == nil {
		return t, nil
	}

	// Fall back to RFC 3339 for values with other fractional precision.
	t, rfcErr := time.Parse(time.RFC3339Nano, raw)
	if rfcErr != nil {
		return time.Time{}, fmt.Errorf("gdrive: parsing modifiedDate %q: %w", raw, err)
	}

	return t.UTC(), nil
}

// parseTimestamp parses modifiedDate and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and
// logged, which makes the entry look newer than any local copy.
func parseTimestamp(raw, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Warn("empty timestamp, using current time",
			slog.String("item_id", itemID),
		)

		return time.Now().UTC()
	}

	t, err := ParseModifiedDate(raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, using current time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}

// escapeQueryValue escapes a value for use inside a single-quoted Drive
// search query string.
func escapeQueryValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// childrenQuery builds the files.list query selecting the non-trashed
// children of folderID.
func childrenQuery(folderID string) string {
	return fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryValue(folderID))
}

// GetEntry retrieves a single file or folder by ID. "root" names the root
// of My Drive.
func (c *Client) GetEntry(ctx context.Context, id string) (*Item, error) {
	c.logger.Debug("getting entry", slog.String("item_id", id))

	var f *drive.File

	err := c.call(ctx, "files.get", func() error {
		var err error
		f, err = c.svc.Files.Get(id).Fields(fileFields).Context(ctx).Do()

		return err
	})
	if err != nil {
		return nil, err
	}

	item := toItem(f, c.logger)

	return &item, nil
}

// ListChildren returns all direct children of a folder in listing order,
// following nextPageToken until the listing is exhausted. Each page is
// retried on its own, so a transient failure does not restart the listing.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Item, error) {
	c.logger.Debug("listing children", slog.String("folder_id", folderID))

	list := c.svc.Files.List().
		Q(childrenQuery(folderID)).
		MaxResults(listPageSize).
		Fields(listFields).
		Context(ctx)

	var items []Item

	for page := 1; ; page++ {
		var fl *drive.FileList

		err := c.call(ctx, "files.list", func() error {
			var err error
			fl, err = list.Do()

			return err
		})
		if err != nil {
			return nil, err
		}

		for _, f := range fl.Items {
			items = append(items, toItem(f, c.logger))
		}

		c.logger.Debug("fetched children page",
			slog.Int("page", page),
			slog.Int("count", len(fl.Items)),
		)

		if fl.NextPageToken == "" {
			break
		}

		list.PageToken(fl.NextPageToken)
	}

	c.logger.Debug("listed children complete",
		slog.String("folder_id", folderID),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}
