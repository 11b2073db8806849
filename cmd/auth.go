package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/nowplaying/internal/server"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/urfave/cli/v3"
)

// Auth opens the consent page, waits for the browser callback, and saves the resulting credential.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	session, err := r.session()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	listener := server.NewListener(server.NewCallbackRouter(session, r.callbackPath(), r.logger), r.logger)
	listenErrs := listener.Start(ctx, r.config.Server.ListenAddr())

	ready := make(chan error, 1)
	go func() { ready <- session.WaitReady(ctx) }()

	session.Authorize()
	r.logger.Info("waiting for authorization", "timeout", cmd.Duration("timeout"))

	select {
	case err, ok := <-listenErrs:
		if ok && err != nil {
			return err
		}
		if err := <-ready; err != nil {
			return err
		}
	case err := <-ready:
		if err != nil {
			return err
		}
	}

	r.logger.Info("credential saved", "storage", r.storageLabel())
	return r.writePlain("✓ Authorized with Spotify\n")
}

// Refresh exchanges the stored refresh token once and saves the result.
func (r *Runner) Refresh(ctx context.Context, cmd *cli.Command) error {
	session, err := r.session()
	if err != nil {
		return err
	}

	cred, err := session.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	return r.writePlain("✓ Access token refreshed\nAccess token: %s (expires in %ds)\n", shared.MaskSecret(cred.AccessToken), cred.ExpiresIn)
}
