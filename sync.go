package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/vikynandha-zz/google-drive-backup/internal/config"
	"github.com/vikynandha-zz/google-drive-backup/internal/gdrive"
	"github.com/vikynandha-zz/google-drive-backup/internal/logging"
	"github.com/vikynandha-zz/google-drive-backup/internal/mirror"
)

// msgCredentialsRevoked is printed when the saved authorization stops working
// mid-run. The run still exits 0; the next run re-authorizes.
const msgCredentialsRevoked = "The credentials have been revoked or expired, " +
	"please re-run the application to re-authorize"

// apiBaseURL is the Drive endpoint. Tests point it at an httptest server.
var apiBaseURL = gdrive.DefaultBaseURL

// syncFs is the filesystem the mirror writes to. Tests swap in afero.MemMapFs.
var syncFs = afero.NewOsFs()

func runSync(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger, closer, err := logging.Open(logging.Options{
		Path:   cfg.LogFile,
		Level:  level,
		Format: cfg.LogFormat,
		Quiet:  flagQuiet,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info("google-drive-backup starting",
		slog.String("version", version),
		slog.String("config", cfg.ConfigPath),
		slog.String("destination", cfg.Destination),
		slog.String("root_folder_id", cfg.RootFolderID),
		slog.String("log_level", cfg.LogLevel),
	)

	release, err := acquireRunLock(runLockPath(cfg.TokenFile))
	if err != nil {
		logger.Error("sync not started", slog.String("error", err.Error()))
		return err
	}
	defer release()

	// A started run is not cancellable; it ends when the walk does.
	ctx := context.Background()

	oauthClient, err := gdrive.LoadClientConfig(cfg.ClientSecrets)
	if err != nil {
		logger.Log(ctx, logging.LevelCritical, "loading OAuth client failed", slog.String("error", err.Error()))
		return err
	}

	ts, err := tokenSource(ctx, oauthClient, cfg, logger)
	if err != nil {
		if gdrive.IsAuthFailure(err) {
			return reportRevoked(cmd, cfg, logger, err)
		}

		logger.Log(ctx, logging.LevelCritical, "authorization failed", slog.String("error", err.Error()))

		return err
	}

	client, err := gdrive.NewClient(apiBaseURL, newHTTPClient(cfg), ts, logger, cfg.UserAgent)
	if err != nil {
		logger.Log(ctx, logging.LevelCritical, "creating Drive client failed", slog.String("error", err.Error()))
		return err
	}

	walker := newWalker(cfg, client, logger)

	statusf("Syncing Drive folder %q into %s\n", cfg.RootFolderID, cfg.Destination)

	if err := walker.Run(ctx, cfg.RootFolderID, cfg.Destination); err != nil {
		if gdrive.IsAuthFailure(err) {
			return reportRevoked(cmd, cfg, logger, err)
		}

		// The sync was attempted; the log holds the details.
		logger.Log(ctx, logging.LevelCritical, "sync failed", slog.String("error", err.Error()))
		statusf("Sync failed: %v\nSee %s for details.\n", err, cfg.LogFile)

		return nil
	}

	s := walker.Summary()
	statusf("Sync complete: %d created, %d updated, %d unchanged, %d failed (%s written). Log: %s\n",
		s.Created, s.Updated, s.UpToDate, s.Failed, formatSize(s.Bytes), cfg.LogFile)

	return nil
}

// newWalker wires the mirror to a Drive client according to cfg.
func newWalker(cfg *config.Resolved, client *gdrive.Client, logger *slog.Logger) *mirror.Walker {
	fetcher := mirror.NewFetcher(syncFs, client, mirror.FetcherOptions{
		ExportMIME: cfg.ExportFormat,
		Attempts:   cfg.FetchAttempts,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
	}, logger)

	return mirror.NewWalker(syncFs, client, fetcher, mirror.Options{
		MaxDepth:       cfg.MaxDepth,
		ListAttempts:   cfg.ListAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Debug:          cfg.Debug,
	}, logger)
}

// reportRevoked tells the user to re-authorize and drops the saved token so
// the next run starts the browser flow. It is not a failed run.
func reportRevoked(cmd *cobra.Command, cfg *config.Resolved, logger *slog.Logger, err error) error {
	logger.Log(context.Background(), logging.LevelCritical, "credentials rejected",
		slog.String("error", err.Error()),
	)

	if rmErr := gdrive.Logout(cfg.TokenFile, logger); rmErr != nil {
		logger.Warn("removing rejected token failed", slog.String("error", rmErr.Error()))
	}

	fmt.Fprintln(cmd.OutOrStdout(), msgCredentialsRevoked)

	return nil
}
