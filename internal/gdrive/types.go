package gdrive

import (
	"io"
	"strings"
	"time"
)

// MIME types with meaning to Drive itself.
const (
	// FolderMimeType marks an entry as a folder.
	FolderMimeType = "application/vnd.google-apps.folder"

	// NativeMimePrefix is shared by Google's own document formats (Docs,
	// Sheets, Slides, Drawings). They have no raw bytes, only exports.
	NativeMimePrefix = "application/vnd.google-apps."
)

// Item represents a Drive file or folder.
// Fields are normalized from the API response; callers never see raw API data.
type Item struct {
	ID          string
	Title       string // display name, may contain "/"
	MimeType    string
	ModifiedAt  time.Time
	ModifiedRaw string            // modifiedDate exactly as sent by the API
	DownloadURL string            // empty for folders and native documents
	ExportLinks map[string]string // target MIME type -> export URL
	MD5Checksum string            // hex, raw files only
	Size        int64
	Trashed     bool
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i.MimeType == FolderMimeType
}

// IsNativeDocument reports whether the item is one of Google's own document
// formats, which can only be downloaded as an export.
func (i *Item) IsNativeDocument() bool {
	return strings.HasPrefix(i.MimeType, NativeMimePrefix)
}

// ExportLink returns the export URL for the given MIME type, or "".
func (i *Item) ExportLink(mimeType string) string {
	if i.ExportLinks == nil {
		return ""
	}

	return i.ExportLinks[mimeType]
}

// Content is the answer to a download or export request. When OK, Body
// streams the payload and must be closed by the caller; read failures
// surface as ErrIncompleteTransfer. Length is the announced size, or -1.
type Content struct {
	StatusCode int
	Status     string
	Length     int64
	Body       io.ReadCloser
}

// OK reports whether the server answered with a 2xx status.
func (c *Content) OK() bool {
	return c.StatusCode >= 200 && c.StatusCode < 300
}
