package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/vikynandha-zz/google-drive-backup/internal/config"
	"github.com/vikynandha-zz/google-drive-backup/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath    string
	flagDestination   string
	flagDriveID       string
	flagLogFile       string
	flagLogLevel      string
	flagClientSecrets string
	flagDebug         bool
	flagQuiet         bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "google-drive-backup",
		Short: "Mirror a Google Drive folder to a local directory",
		Long: "Downloads a Google Drive folder tree into a local directory, " +
			"fetching only files that changed since the last run. Google Docs " +
			"are saved as exports (PDF by default).",
		Version: version,
		Args:    cobra.NoArgs,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		RunE: runSync,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "config file path")
	pf.StringVarP(&flagDestination, "destination", "d", "", "local folder to mirror into (default \"downloaded/\")")
	pf.StringVar(&flagDriveID, "drive_id", "", "ID of the Drive folder to mirror (default \"root\")")
	pf.StringVar(&flagLogFile, "logfile", "", "log file; relative paths are placed in the destination (default \"drive.log\")")
	pf.StringVar(&flagLogLevel, "logging_level", "",
		"log level: DEBUG, INFO, WARNING, ERROR or CRITICAL (default \"INFO\")")
	pf.StringVar(&flagClientSecrets, "client_secrets", "", "OAuth client secrets file (default \"client_secrets.json\")")
	pf.BoolVar(&flagDebug, "debug", false, "log every entry visited and force DEBUG level")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress status output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer override
// chain and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		Debug:      flagDebug,
	}

	// Only pass flags the user explicitly set, so config file values survive.
	flags := cmd.Flags()
	if flags.Changed("destination") {
		cli.Destination = &flagDestination
	}

	if flags.Changed("drive_id") {
		cli.RootFolderID = &flagDriveID
	}

	if flags.Changed("logfile") {
		cli.LogFile = &flagLogFile
	}

	if flags.Changed("logging_level") {
		cli.LogLevel = &flagLogLevel
	}

	if flags.Changed("client_secrets") {
		cli.ClientSecrets = &flagClientSecrets
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates a console logger for commands that do not write the
// sync log file. The configured level applies; --quiet raises it to ERROR.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if resolvedCfg != nil {
		if parsed, err := logging.ParseLevel(resolvedCfg.LogLevel); err == nil {
			level = max(parsed, slog.LevelWarn)
		}

		if resolvedCfg.Debug {
			level = slog.LevelDebug
		}
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return logging.New(os.Stderr, level)
}

// newHTTPClient returns an HTTP client bounded by the configured connect and
// data timeouts. There is no overall deadline; large downloads may take as
// long as they keep making progress.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.DataTimeout

	return &http.Client{Transport: transport}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
