// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "nowplaying",
		Usage:   "Mirror what you're playing on Spotify into your Slack status",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug|info|warn|error)",
			},
		},
		Before:   r.Before,
		Action:   r.Run,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, authCommand, refreshCommand, statusCommand, clearCommand, historyCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// runCommand starts the daemon
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Authorize if needed, then poll Spotify and update Slack until interrupted",
		Action: r.Run,
	}
}

// authCommand runs the browser authorization flow once
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize with Spotify and save the credential",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser callback",
				Value: 2 * time.Minute,
			},
		},
		Action: r.Auth,
	}
}

func refreshCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "Refresh the stored Spotify access token",
		Action: r.Refresh,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the stored credential and what is playing, without updating Slack",
		Action: r.Status,
	}
}

func clearCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "clear",
		Usage:  "Clear the Slack status",
		Action: r.Clear,
	}
}

// historyCommand lists recorded plays
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recently played tracks",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of plays to show",
				Value:   20,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (text|csv|md|json)",
				Value:   "text",
			},
		},
		Action: r.History,
	}
}

// configCommand manages the configuration file
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write an example config to the --config path",
				Action: r.ConfigInit,
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "reveal",
						Usage: "Print secrets without masking",
					},
				},
				Action: r.ConfigShow,
			},
		},
	}
}
