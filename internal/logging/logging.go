// Package logging builds the run's slog.Logger: a level parsed from the
// user's setting, an append-only log file, and an optional stderr tee for
// warnings when a person is watching the terminal.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
)

// LevelCritical sits above slog.LevelError for failures that end the run.
const LevelCritical = slog.LevelError + 4

// Log formats accepted by Open.
const (
	FormatText = "text"
	FormatJSON = "json"
)

const (
	fileFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
	filePerms = 0o644
	dirPerms  = 0o755
)

// ParseLevel maps a level name to its slog level. Names are
// case-insensitive; "WARN" is accepted as an alias for "WARNING".
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q (want DEBUG, INFO, WARNING, ERROR or CRITICAL)", name)
	}
}

// LevelName is the inverse of ParseLevel.
func LevelName(level slog.Level) string {
	switch {
	case level >= LevelCritical:
		return "CRITICAL"
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// Options configures Open.
type Options struct {
	Path   string     // log file; parent directories are created
	Level  slog.Level // minimum level written to the file
	Format string     // FormatText or FormatJSON
	Quiet  bool       // never tee to Stderr
	Stderr io.Writer  // defaults to os.Stderr
	RunID  string     // defaults to a fresh UUID
}

// Open creates (or appends to) the log file and returns a logger writing to
// it. Every record carries a run_id attribute. When Stderr is a terminal
// and Quiet is false, WARNING and above are also written there. The caller
// closes the returned io.Closer when the run ends.
func Open(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, errors.New("logging: log file path is empty")
	}

	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, dirPerms); err != nil {
			return nil, nil, fmt.Errorf("logging: creating log directory: %w", err)
		}
	}

	f, err := os.OpenFile(opts.Path, fileFlags, filePerms)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: opening log file: %w", err)
	}

	handler, err := newHandler(f, opts.Level, opts.Format)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	if !opts.Quiet && isTerminal(stderr) {
		teeLevel := max(opts.Level, slog.LevelWarn)
		handler = &teeHandler{
			primary:   handler,
			secondary: slog.NewTextHandler(stderr, handlerOptions(teeLevel)),
		}
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return slog.New(handler).With(slog.String("run_id", runID)), f, nil
}

// New returns a logger writing to w without a file sink. It is used before
// configuration is resolved and by commands that do not sync.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(level)))
}

func newHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return slog.NewTextHandler(w, handlerOptions(level)), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, handlerOptions(level)), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q (want %q or %q)", format, FormatText, FormatJSON)
	}
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}
}

// replaceLevel renders levels with the names ParseLevel accepts.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(level))
		}
	}

	return a
}

type fdWriter interface {
	Fd() uintptr
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// teeHandler fans records out to two handlers, each applying its own level.
type teeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	if h.primary.Enabled(ctx, r.Level) {
		errs = append(errs, h.primary.Handle(ctx, r.Clone()))
	}

	if h.secondary.Enabled(ctx, r.Level) {
		errs = append(errs, h.secondary.Handle(ctx, r.Clone()))
	}

	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}
