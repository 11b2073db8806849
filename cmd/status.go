package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/nowplaying/internal/tasks"
	"github.com/desertthunder/nowplaying/internal/ui"
	"github.com/urfave/cli/v3"
)

// Status prints the stored credential and one poll of playback state. Slack is not touched.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	store, err := r.credentialStore()
	if err != nil {
		return err
	}

	view := ui.StatusView{Storage: r.storageLabel()}

	cred, err := store.Load(ctx)
	if err != nil {
		r.logger.Warn("could not load credential", "error", err)
	}
	view.Credential = cred

	if cred != nil && !cred.IsZero() {
		state, err := r.player().CurrentlyPlaying(ctx, cred.AccessToken)
		if err != nil {
			view.PollError = err
		} else {
			view.Playback = state
			_, view.NextPoll = tasks.Plan(state, r.config.Monitor)
		}
	}

	return r.writePlain("%s\n", ui.DefaultPalette.RenderStatus(view))
}

// Clear removes the Slack status.
func (r *Runner) Clear(ctx context.Context, cmd *cli.Command) error {
	slack, err := r.publisher()
	if err != nil {
		return err
	}

	if err := slack.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear status: %w", err)
	}
	return r.writePlain("✓ Slack status cleared\n")
}
