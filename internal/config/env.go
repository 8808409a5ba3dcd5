package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig        = "GDRIVE_BACKUP_CONFIG"
	EnvDestination   = "GDRIVE_BACKUP_DESTINATION"
	EnvClientSecrets = "GDRIVE_BACKUP_CLIENT_SECRETS"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath    string // GDRIVE_BACKUP_CONFIG: override config file path
	Destination   string // GDRIVE_BACKUP_DESTINATION: mirror destination
	ClientSecrets string // GDRIVE_BACKUP_CLIENT_SECRETS: OAuth client file
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:    os.Getenv(EnvConfig),
		Destination:   os.Getenv(EnvDestination),
		ClientSecrets: os.Getenv(EnvClientSecrets),
	}
}
