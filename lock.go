package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// lockFileName sits next to the token cache in the data directory.
const lockFileName = "sync.lock"

const (
	lockFilePermissions = 0o644
	lockDirPermissions  = 0o755
)

// acquireRunLock writes the current process ID to path and takes an exclusive
// flock so two syncs never write the same mirror at once. The returned
// release function removes the file and drops the lock.
func acquireRunLock(path string) (release func(), err error) {
	if path == "" {
		return nil, fmt.Errorf("lock file path is empty")
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), lockDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating lock file directory: %w", mkdirErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	// Non-blocking: fail at once if another run holds it.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another sync is already running (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// runLockPath places the lock beside the token cache.
func runLockPath(tokenFile string) string {
	return filepath.Join(filepath.Dir(tokenFile), lockFileName)
}
