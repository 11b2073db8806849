package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/nowplaying/internal/shared"
)

func main() {
	runner := NewRunner(RunnerOpts{})
	defer runner.Close()

	if err := runner.app().Run(context.Background(), os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrMissingCredentials):
			runner.logger.Error("missing credentials", "error", err)
			runner.logger.Info("run `nowplaying config init` to create a config file")
			os.Exit(1)
		case errors.Is(err, shared.ErrTimeout):
			runner.logger.Error("timed out", "error", err)
			os.Exit(1)
		default:
			runner.logger.Fatalf("application error: %v", err)
		}
	}
}
