// Spotify Web API implementation of the authorization flow and playback polling.
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
	"golang.org/x/oauth2"
)

// SpotifyScopes is the fixed scope set requested during authorization.
var SpotifyScopes = []string{
	"user-read-currently-playing",
	"user-read-playback-state",
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents the item of a currently-playing response.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	DurationMS int             `json:"duration_ms"`
}

// SpotifyCurrentlyPlaying represents GET /me/player/currently-playing.
// Item is nil for ads and when the player is idle.
type SpotifyCurrentlyPlaying struct {
	IsPlaying            bool          `json:"is_playing"`
	ProgressMS           *int          `json:"progress_ms"`
	CurrentlyPlayingType string        `json:"currently_playing_type"`
	Item                 *SpotifyTrack `json:"item"`
}

// PlaybackState converts the response to a [models.PlaybackState].
func (c SpotifyCurrentlyPlaying) PlaybackState() models.PlaybackState {
	if c.Item == nil {
		return models.PlaybackState{}
	}

	names := make([]string, 0, len(c.Item.Artists))
	for _, a := range c.Item.Artists {
		names = append(names, a.Name)
	}

	state := models.PlaybackState{
		IsPlaying:  c.IsPlaying,
		TrackName:  c.Item.Name,
		ArtistName: strings.Join(names, ", "),
		DurationMS: c.Item.DurationMS,
	}
	if c.ProgressMS != nil {
		state.ProgressMS = *c.ProgressMS
	}
	return state
}

// APIError is a non-2xx response from a Spotify endpoint.
type APIError struct {
	StatusCode  int
	Status      string // HTTP status text
	Code        string // provider error code, e.g. "invalid_grant"
	Description string // provider error message
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("spotify API error: %s", e.Status)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// Unauthorized reports whether the access token was rejected.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Unwrap maps 401 to [shared.ErrTokenExpired] and everything else to [shared.ErrAPIRequest].
func (e *APIError) Unwrap() error {
	if e.Unauthorized() {
		return shared.ErrTokenExpired
	}
	return shared.ErrAPIRequest
}

// parseAPIError decodes either the Web API body {"error":{"status","message"}}
// or the accounts service body {"error","error_description"}.
func parseAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	if apiErr.Status == "" {
		apiErr.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var envelope struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	var nested struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(envelope.Error, &nested); err == nil {
		apiErr.Code = nested.Reason
		apiErr.Description = nested.Message
		return apiErr
	}

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		apiErr.Code = code
		apiErr.Description = envelope.ErrorDescription
	}
	return apiErr
}

// SpotifyAuthorizer performs the OAuth2 authorization code and refresh grants.
//
// Token requests authenticate with HTTP Basic auth built from the client id and secret.
type SpotifyAuthorizer struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewSpotifyAuthorizer creates a new authorizer from the Spotify configuration.
// client defaults to [http.DefaultClient].
func NewSpotifyAuthorizer(cfg shared.SpotifyConfig, client *http.Client) (*SpotifyAuthorizer, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &SpotifyAuthorizer{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       SpotifyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: client,
	}, nil
}

// AuthURL returns the consent page URL that redirects back to the callback listener.
func (a *SpotifyAuthorizer) AuthURL() string {
	return a.config.AuthCodeURL("")
}

// Exchange trades a one-time authorization code for a credential.
func (a *SpotifyAuthorizer) Exchange(ctx context.Context, code string) (models.Credential, error) {
	if code == "" {
		return models.Credential{}, fmt.Errorf("%w: empty authorization code", shared.ErrInvalidInput)
	}

	tok, err := a.config.Exchange(a.clientContext(ctx), code)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %w", shared.ErrAuthFailed, tokenError(err))
	}
	return models.CredentialFromToken(tok), nil
}

// Refresh exchanges a refresh token for a renewed credential. The result may lack a refresh token.
func (a *SpotifyAuthorizer) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	if refreshToken == "" {
		return models.Credential{}, shared.ErrNoRefreshToken
	}

	// An empty access token forces the token source to refresh.
	src := a.config.TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, tokenError(err))
	}
	return models.CredentialFromToken(tok), nil
}

func (a *SpotifyAuthorizer) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// tokenError converts an [oauth2.RetrieveError] into an [APIError] carrying the provider's code and description.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return err
	}

	apiErr := parseAPIError(re.Response, re.Body)
	if apiErr.Code == "" {
		apiErr.Code = re.ErrorCode
	}
	if apiErr.Description == "" {
		apiErr.Description = re.ErrorDescription
	}
	return apiErr
}

// SpotifyPlayer reads playback state from the Spotify Web API.
type SpotifyPlayer struct {
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyPlayer creates a new player client. client defaults to [http.DefaultClient].
func NewSpotifyPlayer(baseURL string, client *http.Client) *SpotifyPlayer {
	if client == nil {
		client = http.DefaultClient
	}
	return &SpotifyPlayer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// CurrentlyPlaying fetches the user's current track using accessToken as a bearer credential.
//
// A 204 or empty body yields a state with IsPlaying false. Non-2xx responses return an [*APIError].
func (p *SpotifyPlayer) CurrentlyPlaying(ctx context.Context, accessToken string) (*models.PlaybackState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/me/player/currently-playing", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp, body)
	}

	if resp.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(body))) == 0 {
		return &models.PlaybackState{}, nil
	}

	var current SpotifyCurrentlyPlaying
	if err := json.Unmarshal(body, &current); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}

	state := current.PlaybackState()
	return &state, nil
}
