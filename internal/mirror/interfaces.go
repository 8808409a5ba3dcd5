package mirror

import (
	"context"

	"github.com/vikynandha-zz/google-drive-backup/internal/gdrive"
)

// Lister enumerates the remote tree. Satisfied by *gdrive.Client.
type Lister interface {
	GetEntry(ctx context.Context, id string) (*gdrive.Item, error)
	ListChildren(ctx context.Context, folderID string) ([]gdrive.Item, error)
}

// ContentSource fetches the bytes behind a download or export URL.
// Satisfied by *gdrive.Client.
type ContentSource interface {
	FetchContent(ctx context.Context, url string) (*gdrive.Content, error)
}
