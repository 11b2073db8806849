package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/repositories"
	"github.com/desertthunder/nowplaying/internal/shared"
)

// State is the authorization state of a [Session].
type State int

const (
	NoCredential State = iota
	AwaitingCode
	HasCredential
)

func (s State) String() string {
	switch s {
	case NoCredential:
		return "no_credential"
	case AwaitingCode:
		return "awaiting_code"
	case HasCredential:
		return "has_credential"
	default:
		return ""
	}
}

// Authorizer performs the provider side of the authorization code flow.
type Authorizer interface {
	AuthURL() string
	Exchange(ctx context.Context, code string) (models.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (models.Credential, error)
}

// Session owns the credential lifecycle: it decides whether the user must authorize,
// exchanges callback codes, and refreshes the stored credential.
//
// The store is the only place a credential lives; callers read snapshots through [Session.AccessToken].
type Session struct {
	store  repositories.CredentialStore
	auth   Authorizer
	open   shared.BrowserOpener
	out    io.Writer
	logger *log.Logger

	mu    sync.Mutex
	state State
	ready chan struct{}
	once  sync.Once
}

// NewSession creates a session in the [NoCredential] state.
//
// open may be nil, in which case the authorization URL is only printed to out.
func NewSession(store repositories.CredentialStore, auth Authorizer, open shared.BrowserOpener, out io.Writer, logger *log.Logger) *Session {
	if out == nil {
		out = io.Discard
	}
	return &Session{
		store:  store,
		auth:   auth,
		open:   open,
		out:    out,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// State returns the current authorization state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready is closed the first time the session holds a credential.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Start inspects the store. Without a usable credential it asks the user to authorize;
// otherwise it refreshes once and marks the session ready even if the refresh fails.
func (s *Session) Start(ctx context.Context) {
	cred, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("could not load stored credential", "error", err)
	}

	if err != nil || cred == nil || cred.IsZero() {
		s.Authorize()
		return
	}

	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("continuing with stored credential")
	}

	s.mu.Lock()
	s.enter(HasCredential)
	s.mu.Unlock()
}

// Authorize moves the session to [AwaitingCode] and sends the user to the provider's consent page.
func (s *Session) Authorize() {
	s.mu.Lock()
	if s.state != HasCredential {
		s.state = AwaitingCode
	}
	s.mu.Unlock()

	url := s.auth.AuthURL()
	if s.open != nil {
		err := s.open(url)
		if err == nil {
			s.logger.Info("opened browser for authorization")
			return
		}
		s.logger.Warn("could not open browser", "error", err)
	}
	fmt.Fprintf(s.out, "Open this URL to authorize nowplaying:\n\n  %s\n\n", url)
}

// HandleCode exchanges an authorization code and persists the resulting credential.
//
// A failed exchange leaves the stored credential untouched.
func (s *Session) HandleCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.auth.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("authorization code exchange failed", "error", err)
		return err
	}

	if err := s.store.Save(ctx, cred); err != nil {
		s.logger.Error("failed to save credential", "error", err)
		return err
	}

	s.enter(HasCredential)
	s.logger.Info("authorized", "token_type", cred.TokenType, "expires_in", cred.ExpiresIn)
	return nil
}

// Refresh exchanges the stored refresh token for a new access token and saves the merged credential.
func (s *Session) Refresh(ctx context.Context) (models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error("failed to load credential for refresh", "error", err)
		return models.Credential{}, err
	}
	if cred == nil || cred.RefreshToken == "" {
		s.logger.Error("cannot refresh", "error", shared.ErrNoRefreshToken)
		return models.Credential{}, shared.ErrNoRefreshToken
	}

	next, err := s.auth.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		s.logger.Error("token refresh failed", "error", err)
		return models.Credential{}, err
	}

	merged := cred.Merge(next)
	if err := s.store.Save(ctx, merged); err != nil {
		s.logger.Error("failed to save refreshed credential", "error", err)
		return models.Credential{}, err
	}

	s.logger.Debug("refreshed access token", "expires_in", merged.ExpiresIn)
	s.enter(HasCredential)
	return merged, nil
}

// AccessToken returns the access token currently in the store.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	cred, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.AccessToken == "" {
		return "", shared.ErrNotAuthenticated
	}
	return cred.AccessToken, nil
}

// WaitReady blocks until the session holds a credential or ctx is done.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: no authorization received", shared.ErrTimeout)
		}
		return ctx.Err()
	}
}

// enter must be called with mu held.
func (s *Session) enter(state State) {
	s.state = state
	if state == HasCredential {
		s.once.Do(func() { close(s.ready) })
	}
}
