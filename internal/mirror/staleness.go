package mirror

import (
	"errors"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/vikynandha-zz/google-drive-backup/internal/gdrive"
)

// NeedsDownload reports whether item must be fetched to localPath: always
// when nothing exists there, otherwise only when the remote modification
// time is strictly after the local file's. Equal or older remote times
// leave the local copy alone. A stat failure other than "does not exist"
// counts as stale.
func NeedsDownload(fsys afero.Fs, item *gdrive.Item, localPath string) bool {
	stale, _, _ := checkLocal(fsys, item, localPath)
	return stale
}

// checkLocal is NeedsDownload with the details the walker logs: whether a
// local file exists and any unexpected stat error. A path that cannot be
// stat'ed for another reason is assumed to exist.
func checkLocal(fsys afero.Fs, item *gdrive.Item, localPath string) (stale, exists bool, err error) {
	info, err := fsys.Stat(localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return true, false, nil
	}

	if err != nil {
		return true, true, err
	}

	return item.ModifiedAt.After(info.ModTime()), true, nil
}
