package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/repositories"
	"github.com/desertthunder/nowplaying/internal/shared"
	tu "github.com/desertthunder/nowplaying/internal/testing"
)

type memStore struct {
	mu      sync.Mutex
	cred    *models.Credential
	loadErr error
	saves   int
}

func (s *memStore) Load(ctx context.Context) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.cred == nil {
		return nil, nil
	}
	c := *s.cred
	return &c, nil
}

func (s *memStore) Save(ctx context.Context, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &cred
	s.saves++
	return nil
}

type mockAuthorizer struct {
	mu           sync.Mutex
	codes        map[string]models.Credential
	refreshed    models.Credential
	refreshErr   error
	refreshCalls int
	refreshedIDs []string
}

func (a *mockAuthorizer) AuthURL() string {
	return "https://accounts.example.com/authorize?client_id=test"
}

func (a *mockAuthorizer) Exchange(ctx context.Context, code string) (models.Credential, error) {
	cred, ok := a.codes[code]
	if !ok {
		return models.Credential{}, shared.ErrAuthFailed
	}
	return cred, nil
}

func (a *mockAuthorizer) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshCalls++
	a.refreshedIDs = append(a.refreshedIDs, refreshToken)
	if a.refreshErr != nil {
		return models.Credential{}, a.refreshErr
	}
	return a.refreshed, nil
}

func (a *mockAuthorizer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls
}

type browserSpy struct {
	urls []string
	err  error
}

func (b *browserSpy) Open(url string) error {
	b.urls = append(b.urls, url)
	return b.err
}

func storedCredential() *models.Credential {
	return &models.Credential{AccessToken: "old-access", RefreshToken: "refresh-1", ExpiresIn: 3600, TokenType: "Bearer"}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	t.Run("Start", func(t *testing.T) {
		t.Run("Without Credential Opens Browser", func(t *testing.T) {
			store := &memStore{}
			browser := &browserSpy{}
			session := NewSession(store, &mockAuthorizer{}, browser.Open, nil, logger)

			session.Start(ctx)

			if session.State() != AwaitingCode {
				t.Errorf("expected %v, got %v", AwaitingCode, session.State())
			}
			if len(browser.urls) != 1 || browser.urls[0] != "https://accounts.example.com/authorize?client_id=test" {
				t.Errorf("expected authorization URL to be opened, got %v", browser.urls)
			}
			if isClosed(session.Ready()) {
				t.Error("session must not be ready before authorization")
			}
		})

		t.Run("Browser Failure Prints URL", func(t *testing.T) {
			var out bytes.Buffer
			browser := &browserSpy{err: errors.New("no display")}
			session := NewSession(&memStore{}, &mockAuthorizer{}, browser.Open, &out, logger)

			session.Start(ctx)

			if !strings.Contains(out.String(), "https://accounts.example.com/authorize?client_id=test") {
				t.Errorf("expected URL in output, got %q", out.String())
			}
		})

		t.Run("Storage Error Asks For Authorization", func(t *testing.T) {
			browser := &browserSpy{}
			session := NewSession(&memStore{loadErr: shared.ErrCorruptCredential}, &mockAuthorizer{}, browser.Open, nil, logger)

			session.Start(ctx)

			if session.State() != AwaitingCode {
				t.Errorf("expected %v, got %v", AwaitingCode, session.State())
			}
			if len(browser.urls) != 1 {
				t.Errorf("expected browser to open once, got %d", len(browser.urls))
			}
		})

		t.Run("With Credential Refreshes", func(t *testing.T) {
			store := &memStore{cred: storedCredential()}
			auth := &mockAuthorizer{refreshed: models.Credential{AccessToken: "new-access", ExpiresIn: 3600, TokenType: "Bearer"}}
			browser := &browserSpy{}
			session := NewSession(store, auth, browser.Open, nil, logger)

			session.Start(ctx)

			if auth.calls() != 1 {
				t.Errorf("expected 1 refresh, got %d", auth.calls())
			}
			if len(browser.urls) != 0 {
				t.Error("browser must not open when a credential exists")
			}
			if !isClosed(session.Ready()) {
				t.Error("expected session to be ready")
			}
			if store.cred.AccessToken != "new-access" || store.cred.RefreshToken != "refresh-1" {
				t.Errorf("expected merged credential, got %+v", store.cred)
			}
		})

		t.Run("Refresh Failure Is Not Retried", func(t *testing.T) {
			store := &memStore{cred: storedCredential()}
			auth := &mockAuthorizer{refreshErr: shared.ErrRefreshFailed}
			session := NewSession(store, auth, nil, nil, logger)

			session.Start(ctx)

			if auth.calls() != 1 {
				t.Errorf("expected exactly 1 refresh attempt, got %d", auth.calls())
			}
			if session.State() != HasCredential || !isClosed(session.Ready()) {
				t.Error("expected session to continue with stored credential")
			}
			if store.cred.AccessToken != "old-access" {
				t.Errorf("expected stored credential unchanged, got %+v", store.cred)
			}
		})
	})

	t.Run("HandleCode", func(t *testing.T) {
		t.Run("Invalid Code Leaves Store Unchanged", func(t *testing.T) {
			var logs bytes.Buffer
			store := &memStore{}
			session := NewSession(store, &mockAuthorizer{}, nil, nil, shared.NewLogger(&logs))
			session.Authorize()

			err := session.HandleCode(ctx, "invalid")
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
			if store.saves != 0 || store.cred != nil {
				t.Errorf("expected store untouched, got %d saves", store.saves)
			}
			if session.State() != AwaitingCode {
				t.Errorf("expected %v, got %v", AwaitingCode, session.State())
			}
			if !strings.Contains(logs.String(), "exchange failed") {
				t.Errorf("expected error to be logged, got %q", logs.String())
			}
		})

		t.Run("Valid Code Saves And Signals Ready", func(t *testing.T) {
			store := &memStore{}
			auth := &mockAuthorizer{codes: map[string]models.Credential{
				"abc123": {AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600, TokenType: "Bearer"},
			}}
			session := NewSession(store, auth, nil, nil, logger)

			if err := session.HandleCode(ctx, "abc123"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if store.cred == nil || store.cred.AccessToken != "access" {
				t.Errorf("expected credential to be saved, got %+v", store.cred)
			}
			if !isClosed(session.Ready()) {
				t.Error("expected session to be ready")
			}
		})

		t.Run("Second Code Does Not Panic", func(t *testing.T) {
			auth := &mockAuthorizer{codes: map[string]models.Credential{"a": {AccessToken: "1"}, "b": {AccessToken: "2"}}}
			store := &memStore{}
			session := NewSession(store, auth, nil, nil, logger)

			session.HandleCode(ctx, "a")
			if err := session.HandleCode(ctx, "b"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if store.cred.AccessToken != "2" {
				t.Errorf("expected latest credential, got %+v", store.cred)
			}
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("Keeps Refresh Token", func(t *testing.T) {
			store := &memStore{cred: storedCredential()}
			auth := &mockAuthorizer{refreshed: models.Credential{AccessToken: "new-access", ExpiresIn: 1800}}
			session := NewSession(store, auth, nil, nil, logger)

			cred, err := session.Refresh(ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			want := models.Credential{AccessToken: "new-access", RefreshToken: "refresh-1", ExpiresIn: 1800, TokenType: "Bearer"}
			if cred != want || *store.cred != want {
				t.Errorf("expected %+v, got %+v (stored %+v)", want, cred, *store.cred)
			}
			if auth.refreshedIDs[0] != "refresh-1" {
				t.Errorf("expected stored refresh token to be sent, got %s", auth.refreshedIDs[0])
			}
		})

		t.Run("Without Refresh Token", func(t *testing.T) {
			store := &memStore{cred: &models.Credential{AccessToken: "only-access"}}
			auth := &mockAuthorizer{}
			session := NewSession(store, auth, nil, nil, logger)

			if _, err := session.Refresh(ctx); !errors.Is(err, shared.ErrNoRefreshToken) {
				t.Errorf("expected ErrNoRefreshToken, got %v", err)
			}
			if auth.calls() != 0 {
				t.Error("provider must not be called without a refresh token")
			}
		})

		t.Run("Failure Keeps Stored Credential", func(t *testing.T) {
			store := &memStore{cred: storedCredential()}
			session := NewSession(store, &mockAuthorizer{refreshErr: shared.ErrRefreshFailed}, nil, nil, logger)

			if _, err := session.Refresh(ctx); !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
			if store.saves != 0 {
				t.Errorf("expected no saves, got %d", store.saves)
			}
		})
	})

	t.Run("AccessToken", func(t *testing.T) {
		t.Run("Empty Store", func(t *testing.T) {
			session := NewSession(&memStore{}, &mockAuthorizer{}, nil, nil, logger)
			if _, err := session.AccessToken(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("Stored", func(t *testing.T) {
			session := NewSession(&memStore{cred: storedCredential()}, &mockAuthorizer{}, nil, nil, logger)
			token, err := session.AccessToken(ctx)
			if err != nil || token != "old-access" {
				t.Errorf("expected old-access, got %q (%v)", token, err)
			}
		})
	})

	t.Run("WaitReady Timeout", func(t *testing.T) {
		session := NewSession(&memStore{}, &mockAuthorizer{}, nil, nil, logger)
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		if err := session.WaitReady(ctx); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestAuthorizeThenPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := shared.NewLogger(io.Discard)

	path := filepath.Join(t.TempDir(), "nowplaying", "credential.json")
	store, err := repositories.NewFileStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	auth := &mockAuthorizer{codes: map[string]models.Credential{
		"abc123": {AccessToken: "access-abc", RefreshToken: "refresh-abc", ExpiresIn: 3600, TokenType: "Bearer"},
	}}
	browser := &browserSpy{}
	session := NewSession(store, auth, browser.Open, nil, logger)

	session.Start(ctx)
	if len(browser.urls) != 1 {
		t.Fatalf("expected authorization URL to be opened, got %v", browser.urls)
	}

	if err := session.HandleCode(ctx, "abc123"); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(tu.MustReadFile(t, path)), &doc); err != nil {
		t.Fatalf("credential file is not JSON: %v", err)
	}
	for _, key := range []string{"access_token", "refresh_token", "expires_in", "token_type"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("expected %s in credential file", key)
		}
	}

	player := &mockPlayer{states: []*models.PlaybackState{{}}}
	monitor := NewMonitor(session, player, &presenceSpy{}, nil, testMonitorConfig(), logger)
	cycles := make(chan Cycle, 1)
	monitor.Notify(cycles)

	if err := session.WaitReady(ctx); err != nil {
		t.Fatalf("session not ready: %v", err)
	}
	go monitor.Run(ctx)

	select {
	case c := <-cycles:
		if c.Err != nil {
			t.Fatalf("first poll failed: %v", c.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not poll")
	}

	if tokens := player.tokens(); len(tokens) == 0 || tokens[0] != "access-abc" {
		t.Errorf("expected first poll with exchanged token, got %v", tokens)
	}
}
