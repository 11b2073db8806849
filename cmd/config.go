package main

import (
	"context"

	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/urfave/cli/v3"
)

// ConfigInit writes the example configuration to the --config path.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", r.configPath)
	return r.writePlain("✓ Wrote %s\nSet credentials.spotify and credentials.slack, or export SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET and SLACK_TOKEN.\n", r.configPath)
}

// ConfigShow prints the effective configuration as TOML, masking secrets unless --reveal is set.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	config := *r.config
	if !cmd.Bool("reveal") {
		config.Credentials.Spotify.ClientSecret = shared.MaskSecret(config.Credentials.Spotify.ClientSecret)
		config.Credentials.Slack.Token = shared.MaskSecret(config.Credentials.Slack.Token)
	}
	return config.Encode(r.output)
}
