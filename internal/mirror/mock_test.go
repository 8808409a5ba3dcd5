package mirror

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // matches the checksum Drive publishes
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/spf13/afero"

	"github.com/vikynandha-zz/google-drive-backup/internal/gdrive"
)

// --- Mock remote ---

// mockRemote is an in-memory Drive implementing Lister and ContentSource.
// Errors are injected per folder ID (listing) or per URL (content) as a
// queue: each call pops one, and an empty queue means success.
type mockRemote struct {
	mu sync.Mutex

	entries  map[string]*gdrive.Item
	children map[string][]string // folder ID -> child IDs, in listing order
	content  map[string][]byte   // URL -> bytes
	statuses map[string]int      // URL -> non-2xx status to answer with

	getErrs   map[string][]error
	listErrs  map[string][]error
	fetchErrs map[string][]error

	// bodyErrs break a successful response off halfway through its body.
	bodyErrs map[string][]error

	// stickyListErr fails every listing of the folder, never draining.
	stickyListErr map[string]error

	getCalls   map[string]int
	listCalls  map[string]int
	fetchCalls map[string]int
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		entries:       make(map[string]*gdrive.Item),
		children:      make(map[string][]string),
		content:       make(map[string][]byte),
		statuses:      make(map[string]int),
		getErrs:       make(map[string][]error),
		listErrs:      make(map[string][]error),
		fetchErrs:     make(map[string][]error),
		bodyErrs:      make(map[string][]error),
		stickyListErr: make(map[string]error),
		getCalls:      make(map[string]int),
		listCalls:     make(map[string]int),
		fetchCalls:    make(map[string]int),
	}
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// addFolder registers a folder under parentID ("" for a root).
func (m *mockRemote) addFolder(parentID, id, title string) *gdrive.Item {
	item := &gdrive.Item{
		ID:         id,
		Title:      title,
		MimeType:   gdrive.FolderMimeType,
		ModifiedAt: baseTime,
	}

	m.add(parentID, item)

	return item
}

// addFile registers a raw file with a download URL and matching checksum.
func (m *mockRemote) addFile(parentID, id, title, data string) *gdrive.Item {
	url := "https://content.test/" + id
	sum := md5.Sum([]byte(data)) //nolint:gosec // see import

	item := &gdrive.Item{
		ID:          id,
		Title:       title,
		MimeType:    "text/plain",
		ModifiedAt:  baseTime,
		DownloadURL: url,
		MD5Checksum: hex.EncodeToString(sum[:]),
		Size:        int64(len(data)),
	}

	m.content[url] = []byte(data)
	m.add(parentID, item)

	return item
}

// addDocument registers a native document exportable as the given formats.
func (m *mockRemote) addDocument(parentID, id, title string, exports map[string]string) *gdrive.Item {
	item := &gdrive.Item{
		ID:          id,
		Title:       title,
		MimeType:    "application/vnd.google-apps.document",
		ModifiedAt:  baseTime,
		ExportLinks: make(map[string]string),
	}

	for mime, data := range exports {
		url := "https://export.test/" + id + "?mime=" + mime
		item.ExportLinks[mime] = url
		m.content[url] = []byte(data)
	}

	m.add(parentID, item)

	return item
}

func (m *mockRemote) add(parentID string, item *gdrive.Item) {
	m.entries[item.ID] = item
	if parentID != "" {
		m.children[parentID] = append(m.children[parentID], item.ID)
	}
}

func popErr(queue map[string][]error, key string) error {
	errs := queue[key]
	if len(errs) == 0 {
		return nil
	}

	queue[key] = errs[1:]

	return errs[0]
}

func (m *mockRemote) GetEntry(_ context.Context, id string) (*gdrive.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls[id]++

	if err := popErr(m.getErrs, id); err != nil {
		return nil, err
	}

	item, ok := m.entries[id]
	if !ok {
		return nil, &gdrive.APIError{StatusCode: 404, Message: "File not found", Err: gdrive.ErrNotFound}
	}

	cp := *item

	return &cp, nil
}

func (m *mockRemote) ListChildren(_ context.Context, folderID string) ([]gdrive.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls[folderID]++

	if err := m.stickyListErr[folderID]; err != nil {
		return nil, err
	}

	if err := popErr(m.listErrs, folderID); err != nil {
		return nil, err
	}

	var items []gdrive.Item
	for _, id := range m.children[folderID] {
		items = append(items, *m.entries[id])
	}

	return items, nil
}

func (m *mockRemote) FetchContent(_ context.Context, url string) (*gdrive.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchCalls[url]++

	if err := popErr(m.fetchErrs, url); err != nil {
		return nil, err
	}

	if code, ok := m.statuses[url]; ok {
		return &gdrive.Content{StatusCode: code, Status: statusText(code)}, nil
	}

	data, ok := m.content[url]
	if !ok {
		return &gdrive.Content{StatusCode: 404, Status: "404 Not Found"}, nil
	}

	content := &gdrive.Content{StatusCode: 200, Status: "200 OK", Length: int64(len(data))}

	if err := popErr(m.bodyErrs, url); err != nil {
		content.Body = io.NopCloser(io.MultiReader(
			bytes.NewReader(bytes.Clone(data[:len(data)/2])),
			iotest.ErrReader(err),
		))

		return content, nil
	}

	content.Body = io.NopCloser(bytes.NewReader(bytes.Clone(data)))

	return content, nil
}

func statusText(code int) string {
	switch code {
	case 403:
		return "403 Forbidden"
	case 500:
		return "500 Internal Server Error"
	default:
		return "404 Not Found"
	}
}

// --- Local filesystem faults ---

var errDiskFull = errors.New("no space left on device")

// diskFullFs accepts half of every write and then fails while full is set,
// like a filesystem running out of space mid-file.
type diskFullFs struct {
	afero.Fs
	full bool
}

func (d *diskFullFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := d.Fs.OpenFile(name, flag, perm)
	if err != nil || !d.full {
		return f, err
	}

	return &diskFullFile{File: f}, nil
}

type diskFullFile struct {
	afero.File
}

func (f *diskFullFile) Write(p []byte) (int, error) {
	n, _ := f.File.Write(p[:len(p)/2])
	return n, errDiskFull
}

// --- Helpers ---

var errBoom = errors.New("boom")

// testLogger returns a debug-level logger capturing output in buf.
func testLogger(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer

	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func fastFetcherOptions() FetcherOptions {
	return FetcherOptions{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
	}
}

func fastWalkerOptions() Options {
	return Options{
		MaxDepth:       DefaultMaxDepth,
		ListAttempts:   3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	}
}
