// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for google-drive-backup. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags). All keys live at the top level of the file.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// The embedded sections only group related keys in Go; in the file every key
// is flat.
type Config struct {
	MirrorConfig
	RetryConfig
	LoggingConfig
	AuthConfig
	NetworkConfig
}

// MirrorConfig controls what is mirrored and where it lands.
type MirrorConfig struct {
	Destination  string `toml:"destination"`
	RootFolderID string `toml:"root_folder_id"`
	MaxDepth     int    `toml:"max_depth"`
	ExportFormat string `toml:"export_format"`
}

// RetryConfig bounds the retries around folder listings and content fetches.
type RetryConfig struct {
	ListAttempts   int    `toml:"list_attempts"`
	FetchAttempts  int    `toml:"fetch_attempts"`
	RetryBaseDelay string `toml:"retry_base_delay"`
	RetryMaxDelay  string `toml:"retry_max_delay"`
}

// LoggingConfig controls the run log: level, file, and record format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// AuthConfig locates the OAuth client file and the credential cache.
type AuthConfig struct {
	ClientSecrets string `toml:"client_secrets"`
	TokenFile     string `toml:"token_file"`
}

// NetworkConfig controls HTTP client behavior: timeouts and user agent.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath    string  // --config flag (empty = use default)
	Destination   *string // --destination
	RootFolderID  *string // --drive_id
	LogFile       *string // --logfile
	LogLevel      *string // --logging_level
	ClientSecrets *string // --client_secrets
	Debug         bool    // --debug forces DEBUG
}

// Resolved is the effective configuration after all four layers have been
// applied, with durations parsed and paths made concrete.
type Resolved struct {
	ConfigPath     string
	Destination    string
	RootFolderID   string
	MaxDepth       int
	ExportFormat   string
	ListAttempts   int
	FetchAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	LogLevel       string
	LogFile        string // absolute, or relative to the working directory
	LogFormat      string
	ClientSecrets  string
	TokenFile      string
	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	UserAgent      string
	Debug          bool
}
