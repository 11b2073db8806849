// Package services wraps the two third-party HTTP APIs nowplaying talks to.
//
// # Spotify
//
// [SpotifyAuthorizer] runs the OAuth2 authorization code grant and the refresh grant against the accounts service
// using [golang.org/x/oauth2]. Token requests use HTTP Basic client authentication.
//
// [SpotifyPlayer] calls GET /me/player/currently-playing with the stored access token as a bearer credential.
// Provider failures surface as [*APIError], which unwraps to [shared.ErrTokenExpired] for 401 responses so callers
// can decide between refreshing and giving up.
//
// # Slack
//
// [SlackPublisher] posts profile status updates to users.profile.set with a static user token.
// Requests go through [retryablehttp], so transient transport errors and 5xx responses are retried before the
// failure is logged.
package services
