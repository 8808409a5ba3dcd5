package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/vikynandha-zz/google-drive-backup/internal/config"
	"github.com/vikynandha-zz/google-drive-backup/internal/gdrive"
)

// openBrowser launches the consent page. Tests replace it.
var openBrowser = open.Start

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize read-only access to Google Drive in the browser",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved credentials",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	client, err := gdrive.LoadClientConfig(resolvedCfg.ClientSecrets)
	if err != nil {
		return err
	}

	logger.Info("login started", slog.String("token_file", resolvedCfg.TokenFile))

	if _, err := login(ctx, client, resolvedCfg, logger); err != nil {
		return err
	}

	statusf("Login successful. Credentials saved to %s\n", resolvedCfg.TokenFile)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := gdrive.Logout(resolvedCfg.TokenFile, logger); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

// login runs the browser flow and saves the resulting token. When the
// browser cannot be opened the URL is printed instead.
func login(ctx context.Context, client *oauth2.Config, cfg *config.Resolved, logger *slog.Logger) (gdrive.TokenSource, error) {
	statusf("Opening your browser to authorize read-only access to Google Drive...\n")

	ts, err := gdrive.LoginWithBrowser(ctx, client, cfg.TokenFile, openBrowser, logger)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	logger.Info("login successful", slog.String("token_file", cfg.TokenFile))

	return ts, nil
}

// tokenSource returns credentials for the sync: the saved token when there
// is one, otherwise a fresh browser login.
func tokenSource(ctx context.Context, client *oauth2.Config, cfg *config.Resolved, logger *slog.Logger) (gdrive.TokenSource, error) {
	ts, err := gdrive.TokenSourceFromPath(ctx, client, cfg.TokenFile, logger)
	if errors.Is(err, gdrive.ErrNotLoggedIn) {
		logger.Info("no saved credentials, starting browser login")
		statusf("No saved credentials found; starting authorization.\n")

		return login(ctx, client, cfg, logger)
	}

	return ts, err
}
