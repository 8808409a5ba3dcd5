package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and reproduce the tool's zero-config
// behavior: mirror all of My Drive into ./downloaded.
const (
	defaultDestination    = "downloaded/"
	defaultRootFolderID   = "root"
	defaultMaxDepth       = 64
	defaultExportFormat   = "application/pdf"
	defaultListAttempts   = 5
	defaultFetchAttempts  = 3
	defaultRetryBaseDelay = "1s"
	defaultRetryMaxDelay  = "30s"
	defaultLogLevel       = "INFO"
	defaultLogFile        = "drive.log"
	defaultLogFormat      = "text"
	defaultClientSecrets  = "client_secrets.json"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
// TokenFile stays empty here; Resolve places it in the data directory.
func DefaultConfig() *Config {
	return &Config{
		MirrorConfig: MirrorConfig{
			Destination:  defaultDestination,
			RootFolderID: defaultRootFolderID,
			MaxDepth:     defaultMaxDepth,
			ExportFormat: defaultExportFormat,
		},
		RetryConfig: RetryConfig{
			ListAttempts:   defaultListAttempts,
			FetchAttempts:  defaultFetchAttempts,
			RetryBaseDelay: defaultRetryBaseDelay,
			RetryMaxDelay:  defaultRetryMaxDelay,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFile:   defaultLogFile,
			LogFormat: defaultLogFormat,
		},
		AuthConfig: AuthConfig{
			ClientSecrets: defaultClientSecrets,
		},
		NetworkConfig: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}
