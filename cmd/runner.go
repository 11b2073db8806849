package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/repositories"
	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/desertthunder/nowplaying/internal/tasks"
	"github.com/urfave/cli/v3"
)

const defaultHTTPTimeout = 15 * time.Second

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	opener     shared.BrowserOpener
	closers    []io.Closer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config flag before any command runs.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Opener     shared.BrowserOpener
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if opts.Opener == nil {
		opts.Opener = shared.OpenBrowser
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		opener:     opts.Opener,
	}
}

// Before loads configuration and replaces the bootstrap logger with the configured one.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.config == nil {
		config, err := shared.LoadConfig(r.configPath, nil)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if level := cmd.String("log-level"); level != "" {
		r.config.Log.Level = level
	}

	if r.config.Log.File != "" || r.config.Log.Level != "" {
		logger, closer, err := shared.NewConfiguredLogger(r.config.Log)
		if err != nil {
			return ctx, err
		}
		r.logger = logger
		r.closers = append(r.closers, closer)
	}

	r.logger.Debug("configuration loaded", "path", r.configPath, "storage", r.config.Storage.Type)
	return ctx, nil
}

// Close releases resources opened by commands.
func (r *Runner) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

func (r *Runner) credentialStore() (repositories.CredentialStore, error) {
	store, err := repositories.NewCredentialStore(r.config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return store, nil
}

func (r *Runner) storageLabel() string {
	if r.config.Storage.Type == shared.StorageKeyring {
		return fmt.Sprintf("keyring (%s)", r.config.Storage.KeyringUser)
	}
	return r.config.Storage.Path
}

func (r *Runner) authorizer() (*services.SpotifyAuthorizer, error) {
	if err := r.config.RequireSpotify(); err != nil {
		return nil, err
	}
	return services.NewSpotifyAuthorizer(r.config.Credentials.Spotify, r.httpClient)
}

func (r *Runner) player() *services.SpotifyPlayer {
	return services.NewSpotifyPlayer(r.config.Credentials.Spotify.APIURL, r.httpClient)
}

func (r *Runner) publisher() (*services.SlackPublisher, error) {
	if err := r.config.RequireSlack(); err != nil {
		return nil, err
	}
	return services.NewSlackPublisher(r.config.Credentials.Slack, r.logger, r.httpClient), nil
}

// historyDB opens the play history database, or returns nil when history is disabled.
func (r *Runner) historyDB() (*sql.DB, error) {
	if r.config.Database.Path == "" {
		return nil, nil
	}
	db, err := shared.OpenDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, db)
	return db, nil
}

func (r *Runner) session() (*tasks.Session, error) {
	store, err := r.credentialStore()
	if err != nil {
		return nil, err
	}
	auth, err := r.authorizer()
	if err != nil {
		return nil, err
	}
	return tasks.NewSession(store, auth, r.opener, r.output, r.logger), nil
}

// callbackPath is the path component of the configured redirect URI.
func (r *Runner) callbackPath() string {
	u, err := url.Parse(r.config.Credentials.Spotify.RedirectURI)
	if err != nil || u.Path == "" {
		return "/callback"
	}
	return u.Path
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
