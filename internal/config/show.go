package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration to w as a TOML document
// annotated with section comments. The output is a valid config file: every
// key is top-level, matching what Load accepts.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.ConfigPath != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)
	} else {
		ew.printf("# Effective configuration (no config file)\n\n")
	}

	renderMirrorSection(ew, r)
	renderRetrySection(ew, r)
	renderLoggingSection(ew, r)
	renderAuthSection(ew, r)
	renderNetworkSection(ew, r)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderMirrorSection(ew *errWriter, r *Resolved) {
	ew.printf("# mirror\n")
	ew.printf("destination    = %q\n", r.Destination)
	ew.printf("root_folder_id = %q\n", r.RootFolderID)
	ew.printf("max_depth      = %d\n", r.MaxDepth)
	ew.printf("export_format  = %q\n", r.ExportFormat)
	ew.printf("\n")
}

func renderRetrySection(ew *errWriter, r *Resolved) {
	ew.printf("# retry\n")
	ew.printf("list_attempts    = %d\n", r.ListAttempts)
	ew.printf("fetch_attempts   = %d\n", r.FetchAttempts)
	ew.printf("retry_base_delay = %q\n", r.RetryBaseDelay)
	ew.printf("retry_max_delay  = %q\n", r.RetryMaxDelay)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, r *Resolved) {
	ew.printf("# logging\n")
	ew.printf("log_level  = %q\n", r.LogLevel)
	ew.printf("log_file   = %q\n", r.LogFile)
	ew.printf("log_format = %q\n", r.LogFormat)
	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, r *Resolved) {
	ew.printf("# auth\n")
	ew.printf("client_secrets = %q\n", r.ClientSecrets)
	ew.printf("token_file     = %q\n", r.TokenFile)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, r *Resolved) {
	ew.printf("# network\n")
	ew.printf("connect_timeout = %q\n", r.ConnectTimeout)
	ew.printf("data_timeout    = %q\n", r.DataTimeout)

	if r.UserAgent != "" {
		ew.printf("user_agent      = %q\n", r.UserAgent)
	}
}
