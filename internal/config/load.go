package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. The tool runs without any
// config file.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// A config path named explicitly (env or CLI) must exist.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	explicit := false

	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
		explicit = true
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
		explicit = true
	}

	cfgPath = expandTilde(cfgPath)

	// 2. Load config file (defaults if the implicit file does not exist)
	var (
		cfg *Config
		err error
	)

	if explicit {
		cfg, err = Load(cfgPath)
	} else {
		cfg, err = LoadOrDefault(cfgPath)
	}

	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.Destination != "" {
		cfg.Destination = env.Destination
	}

	if env.ClientSecrets != "" {
		cfg.ClientSecrets = env.ClientSecrets
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	applyCLI(cfg, cli)

	// 5. Validate the merged result, then make it concrete.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath, cli.Debug), nil
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.Destination != nil {
		cfg.Destination = *cli.Destination
	}

	if cli.RootFolderID != nil {
		cfg.RootFolderID = *cli.RootFolderID
	}

	if cli.LogFile != nil {
		cfg.LogFile = *cli.LogFile
	}

	if cli.LogLevel != nil {
		cfg.LogLevel = *cli.LogLevel
	}

	if cli.ClientSecrets != nil {
		cfg.ClientSecrets = *cli.ClientSecrets
	}

	if cli.Debug {
		cfg.LogLevel = "DEBUG"
	}
}

// resolve converts a validated Config into its effective form. Durations
// were already checked by Validate, so parse errors cannot occur here.
func resolve(cfg *Config, cfgPath string, debug bool) *Resolved {
	destination := expandTilde(cfg.Destination)

	tokenFile := expandTilde(cfg.TokenFile)
	if tokenFile == "" {
		tokenFile = DefaultTokenPath()
	}

	return &Resolved{
		ConfigPath:     cfgPath,
		Destination:    destination,
		RootFolderID:   cfg.RootFolderID,
		MaxDepth:       cfg.MaxDepth,
		ExportFormat:   cfg.ExportFormat,
		ListAttempts:   cfg.ListAttempts,
		FetchAttempts:  cfg.FetchAttempts,
		RetryBaseDelay: parsedDuration(cfg.RetryBaseDelay),
		RetryMaxDelay:  parsedDuration(cfg.RetryMaxDelay),
		LogLevel:       strings.ToUpper(cfg.LogLevel),
		LogFile:        LogFilePath(destination, expandTilde(cfg.LogFile)),
		LogFormat:      strings.ToLower(cfg.LogFormat),
		ClientSecrets:  expandTilde(cfg.ClientSecrets),
		TokenFile:      tokenFile,
		ConnectTimeout: parsedDuration(cfg.ConnectTimeout),
		DataTimeout:    parsedDuration(cfg.DataTimeout),
		UserAgent:      cfg.UserAgent,
		Debug:          debug,
	}
}

// LogFilePath places a relative log file inside the destination directory.
// Absolute paths are used as given.
func LogFilePath(destination, logFile string) string {
	if filepath.IsAbs(logFile) {
		return logFile
	}

	return filepath.Join(destination, logFile)
}

func parsedDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}

// expandTilde replaces a leading "~" with the user's home directory.
// "~user" forms are left alone.
func expandTilde(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}

	return expanded
}
