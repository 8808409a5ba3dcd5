package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vikynandha-zz/google-drive-backup/internal/logging"
)

// Validation range constants.
const (
	minMaxDepth       = 1
	maxMaxDepth       = 1024
	minAttempts       = 1
	maxAttempts       = 20
	minRetryDelay     = 10 * time.Millisecond
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateMirror(&cfg.MirrorConfig)...)
	errs = append(errs, validateRetry(&cfg.RetryConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateAuth(&cfg.AuthConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

func validateMirror(m *MirrorConfig) []error {
	var errs []error

	if strings.TrimSpace(m.Destination) == "" {
		errs = append(errs, errors.New("destination: must not be empty"))
	}

	if strings.TrimSpace(m.RootFolderID) == "" {
		errs = append(errs, errors.New("root_folder_id: must not be empty"))
	}

	if m.MaxDepth < minMaxDepth || m.MaxDepth > maxMaxDepth {
		errs = append(errs, fmt.Errorf("max_depth: must be between %d and %d, got %d",
			minMaxDepth, maxMaxDepth, m.MaxDepth))
	}

	if !strings.Contains(m.ExportFormat, "/") {
		errs = append(errs, fmt.Errorf("export_format: must be a MIME type such as %q, got %q",
			defaultExportFormat, m.ExportFormat))
	}

	return errs
}

func validateRetry(r *RetryConfig) []error {
	var errs []error

	errs = append(errs, validateAttempts("list_attempts", r.ListAttempts)...)
	errs = append(errs, validateAttempts("fetch_attempts", r.FetchAttempts)...)

	base, baseErr := time.ParseDuration(r.RetryBaseDelay)
	maxDelay, maxErr := time.ParseDuration(r.RetryMaxDelay)

	errs = append(errs, validateDurationMin("retry_base_delay", r.RetryBaseDelay, minRetryDelay)...)
	errs = append(errs, validateDurationMin("retry_max_delay", r.RetryMaxDelay, minRetryDelay)...)

	if baseErr == nil && maxErr == nil && maxDelay < base {
		errs = append(errs, fmt.Errorf("retry_max_delay: must be >= retry_base_delay (%s), got %s", base, maxDelay))
	}

	return errs
}

func validateAttempts(field string, n int) []error {
	if n < minAttempts || n > maxAttempts {
		return []error{fmt.Errorf("%s: must be between %d and %d, got %d", field, minAttempts, maxAttempts, n)}
	}

	return nil
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	if strings.TrimSpace(l.LogFile) == "" {
		errs = append(errs, errors.New("log_file: must not be empty"))
	}

	return errs
}

func validateLogLevel(level string) []error {
	if _, err := logging.ParseLevel(level); err != nil || level == "" {
		return []error{fmt.Errorf("log_level: must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	logging.FormatText: true,
	logging.FormatJSON: true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[strings.ToLower(format)] {
		return []error{fmt.Errorf("log_format: must be one of text, json; got %q", format)}
	}

	return nil
}

func validateAuth(a *AuthConfig) []error {
	if strings.TrimSpace(a.ClientSecrets) == "" {
		return []error{errors.New("client_secrets: must not be empty")}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}
