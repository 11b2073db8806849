package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/nowplaying/internal/formatter"
	"github.com/desertthunder/nowplaying/internal/repositories"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists recorded plays in the requested format.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if r.config.Database.Path == "" {
		return fmt.Errorf("%w: play history is disabled; set [database] path in config", shared.ErrInvalidArgument)
	}
	return r.writeHistory(ctx, cmd.Int("limit"), cmd.String("format"))
}

func (r *Runner) writeHistory(ctx context.Context, limit int, format string) error {
	if limit < 0 {
		return fmt.Errorf("%w: limit must be positive", shared.ErrInvalidArgument)
	}

	db, err := r.historyDB()
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	plays, err := repositories.NewHistoryRepository(db).Recent(ctx, limit)
	if err != nil {
		return err
	}

	r.logger.Debug("loaded play history", "count", len(plays))
	return formatter.Write(r.output, format, plays)
}
