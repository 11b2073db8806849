package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/nowplaying/internal/repositories"
	"github.com/desertthunder/nowplaying/internal/server"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/desertthunder/nowplaying/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Run starts the daemon: callback listener, authorization session, playback monitor and signal handling.
//
// A monitor that stops on a provider error does not end the process; the listener and signal handling keep running.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	session, err := r.session()
	if err != nil {
		return err
	}
	slack, err := r.publisher()
	if err != nil {
		return err
	}

	var recorder tasks.Recorder
	db, err := r.historyDB()
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	if db != nil {
		recorder = repositories.NewHistoryRepository(db)
	}

	monitor := tasks.NewMonitor(session, r.player(), slack, recorder, r.config.Monitor, r.logger)
	listener := server.NewListener(server.NewCallbackRouter(session, r.callbackPath(), r.logger), r.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals, stop := signalChannel()
	defer stop()

	return r.serve(ctx, cancel, session, monitor, listener, signals)
}

func (r *Runner) serve(ctx context.Context, cancel context.CancelFunc, session *tasks.Session, monitor *tasks.Monitor, listener *server.Listener, signals <-chan os.Signal) error {
	g, gCtx := errgroup.WithContext(ctx)

	listenErrs := listener.Start(gCtx, r.config.Server.ListenAddr())
	g.Go(func() error {
		select {
		case err, ok := <-listenErrs:
			if ok && err != nil {
				r.logger.Error("callback listener failed", "error", err)
				return fmt.Errorf("listener: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		session.Start(gCtx)
		if err := session.WaitReady(gCtx); err != nil {
			return nil
		}

		err := monitor.Run(gCtx)
		if errors.Is(err, shared.ErrPollingStopped) {
			r.logger.Error("polling stopped; press Ctrl+C to exit", "error", err)
			return nil
		}
		return err
	})

	g.Go(func() error {
		r.handleSignals(gCtx, cancel, monitor, signals)
		return nil
	})

	return g.Wait()
}

// handleSignals pauses, resumes or stops the daemon until ctx is done.
//
// On stop the presence is cleared and the grace delay elapses before ctx is cancelled.
func (r *Runner) handleSignals(ctx context.Context, cancel context.CancelFunc, monitor *tasks.Monitor, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			switch signalActionFor(sig) {
			case actionPause:
				r.logger.Info("received suspend signal", "signal", sig)
				monitor.Pause(ctx)
			case actionResume:
				r.logger.Info("received continue signal", "signal", sig)
				monitor.Resume()
			default:
				r.logger.Info("shutting down", "signal", sig)
				r.shutdown(ctx, monitor)
				cancel()
				return
			}
		}
	}
}

func (r *Runner) shutdown(ctx context.Context, monitor *tasks.Monitor) {
	grace := r.config.Monitor.ShutdownGrace()

	clearCtx, done := context.WithTimeout(context.WithoutCancel(ctx), grace+5*time.Second)
	defer done()
	if err := monitor.Stop(clearCtx); err != nil {
		r.logger.Warn("failed to clear status", "error", err)
	}

	time.Sleep(grace)
}
