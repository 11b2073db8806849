package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
	"golang.org/x/time/rate"
)

// TokenSource supplies access tokens and renews them when the provider rejects one.
// [Session] implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (models.Credential, error)
}

// Player reads the user's playback state.
type Player interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*models.PlaybackState, error)
}

// Publisher sets the user's presence.
type Publisher interface {
	PublishUpdate(ctx context.Context, update models.PresenceUpdate) error
}

// Recorder persists plays (implemented by repositories.HistoryRepository).
type Recorder interface {
	Record(ctx context.Context, play *models.Play) error
}

// Monitor polls playback and mirrors it into presence.
//
// Only one poll is ever outstanding: the next one is scheduled after the previous cycle finishes,
// with a delay computed from the time left in the current track.
type Monitor struct {
	tokens   TokenSource
	player   Player
	presence Publisher
	history  Recorder
	limiter  *rate.Limiter
	logger   *log.Logger
	cfg      shared.MonitorConfig

	mu        sync.Mutex
	paused    bool
	stopped   bool
	published *models.PresenceUpdate
	lastTrack string

	wake    chan struct{}
	updates chan<- Cycle
}

// NewMonitor creates a monitor. history may be nil.
func NewMonitor(tokens TokenSource, player Player, presence Publisher, history Recorder, cfg shared.MonitorConfig, logger *log.Logger) *Monitor {
	limit := rate.Inf
	if cfg.MinIntervalMS > 0 {
		limit = rate.Every(cfg.MinInterval())
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Monitor{
		tokens:   tokens,
		player:   player,
		presence: presence,
		history:  history,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
	}
}

// Plan maps a playback state to the presence it should produce and the wait before the next poll.
//
// The delay is not clamped: a track that reports progress past its duration yields a
// non-positive delay, which schedules the next poll immediately.
func Plan(state *models.PlaybackState, cfg shared.MonitorConfig) (models.PresenceUpdate, time.Duration) {
	if state == nil || !state.IsPlaying {
		return models.PresenceUpdate{}, cfg.IdleDelay()
	}
	return models.NewPresence(state.Label(), cfg.StatusEmoji), state.Remaining() + cfg.EndBuffer()
}

// Poll runs a single cycle and returns the delay before the next one.
//
// An expired access token triggers exactly one refresh and a zero delay.
// Any other failure is logged and returned wrapped in [shared.ErrPollingStopped].
func (m *Monitor) Poll(ctx context.Context) (time.Duration, error) {
	token, err := m.tokens.AccessToken(ctx)
	if err != nil {
		m.logger.Error("no access token available", "error", err)
		return 0, fmt.Errorf("%w: %w", shared.ErrPollingStopped, err)
	}

	state, err := m.player.CurrentlyPlaying(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrTokenExpired) {
			m.logger.Info("access token expired, refreshing")
			// Failures are logged by the session.
			_, _ = m.tokens.Refresh(ctx)
			return 0, nil
		}

		m.logFailure(err)
		return 0, fmt.Errorf("%w: %w", shared.ErrPollingStopped, err)
	}

	update, delay := Plan(state, m.cfg)
	m.publish(ctx, update)
	m.record(ctx, state)

	if state.IsPlaying {
		m.logger.Debug("playing", "track", state.Label(), "next_poll", delay)
	} else {
		m.logger.Debug("nothing playing", "next_poll", delay)
	}
	return delay, nil
}

// Run polls until ctx is cancelled or a cycle fails with a non-recoverable error.
//
// Cancellation returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	m.logger.Info("monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-m.wake:
			if m.Paused() {
				timer.Stop()
				continue
			}
		case <-timer.C:
			if m.Paused() {
				continue
			}
		}

		if err := m.limiter.Wait(ctx); err != nil {
			m.logger.Info("monitor stopped")
			return nil
		}

		delay, err := m.Poll(ctx)
		m.sendCycle(Cycle{Delay: delay, Err: err})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Warn("polling stopped")
			return err
		}

		if !m.Paused() {
			timer.Reset(delay)
		}
	}
}

// Pause stops scheduling polls and clears the presence.
func (m *Monitor) Pause(ctx context.Context) {
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = true
	m.publishLocked(ctx, models.PresenceUpdate{})
	m.mu.Unlock()

	m.logger.Info("monitor paused")
	m.signal()
}

// Resume restarts polling with an immediate poll.
func (m *Monitor) Resume() {
	m.mu.Lock()
	if !m.paused || m.stopped {
		m.mu.Unlock()
		return
	}
	m.paused = false
	m.mu.Unlock()

	m.logger.Info("monitor resumed")
	m.signal()
}

// Paused reports whether the monitor is suspended.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Stop suspends the monitor for good and unconditionally clears the presence.
// Polls already in flight finish without publishing, and [Monitor.Resume] has no effect afterwards.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.paused = true
	m.stopped = true
	err := m.presence.PublishUpdate(ctx, models.PresenceUpdate{})
	if err == nil {
		m.published = &models.PresenceUpdate{}
	}
	m.mu.Unlock()

	m.signal()
	return err
}

func (m *Monitor) publish(ctx context.Context, update models.PresenceUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return
	}
	m.publishLocked(ctx, update)
}

// publishLocked must be called with mu held.
func (m *Monitor) publishLocked(ctx context.Context, update models.PresenceUpdate) {
	if m.published != nil && *m.published == update {
		return
	}

	if err := m.presence.PublishUpdate(ctx, update); err != nil {
		m.logger.Warn("presence update failed", "error", err)
		return
	}
	m.published = &update
}

func (m *Monitor) record(ctx context.Context, state *models.PlaybackState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !state.IsPlaying {
		m.lastTrack = ""
		return
	}

	label := state.Label()
	if label == m.lastTrack {
		return
	}
	m.lastTrack = label

	if m.history == nil {
		return
	}

	play := &models.Play{TrackName: state.TrackName, ArtistName: state.ArtistName, DurationMS: state.DurationMS}
	if err := m.history.Record(ctx, play); err != nil {
		m.logger.Warn("failed to record play", "error", err)
	}
}

func (m *Monitor) logFailure(err error) {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		m.logger.Error("playback request failed",
			"message", err.Error(),
			"status", apiErr.StatusCode,
			"code", apiErr.Code,
			"description", apiErr.Description,
		)
		return
	}
	m.logger.Error("playback request failed", "message", err.Error())
}

func (m *Monitor) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
