package models

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// MaxStatusTextLength is the longest status_text Slack accepts.
const MaxStatusTextLength = 100

// Credential is the token record issued by the Spotify accounts service.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// CredentialFromToken converts an [oauth2.Token] response into a [Credential].
func CredentialFromToken(tok *oauth2.Token) Credential {
	if tok == nil {
		return Credential{}
	}
	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    tok.TokenType,
	}
}

// IsZero reports whether the credential carries no access token.
func (c Credential) IsZero() bool {
	return c.AccessToken == ""
}

// Merge overlays next onto c. Empty fields in next keep the stored value, so a
// refresh response without refresh_token preserves the previous one.
func (c Credential) Merge(next Credential) Credential {
	merged := c
	if next.AccessToken != "" {
		merged.AccessToken = next.AccessToken
	}
	if next.RefreshToken != "" {
		merged.RefreshToken = next.RefreshToken
	}
	if next.ExpiresIn != 0 {
		merged.ExpiresIn = next.ExpiresIn
	}
	if next.TokenType != "" {
		merged.TokenType = next.TokenType
	}
	return merged
}

// PlaybackState is the subset of Spotify's currently-playing object the monitor needs.
type PlaybackState struct {
	IsPlaying  bool
	TrackName  string
	ArtistName string
	DurationMS int
	ProgressMS int
}

// Remaining returns the time left in the track, which is negative when progress reporting is ahead of duration.
func (p PlaybackState) Remaining() time.Duration {
	return time.Duration(p.DurationMS-p.ProgressMS) * time.Millisecond
}

// Label formats the track as "{artist} - {track}".
func (p PlaybackState) Label() string {
	return fmt.Sprintf("%s - %s", p.ArtistName, p.TrackName)
}

// PresenceUpdate is a Slack profile status. The zero value clears the status.
type PresenceUpdate struct {
	StatusText  string `json:"status_text"`
	StatusEmoji string `json:"status_emoji"`
}

// NewPresence builds a status, truncating text that exceeds [MaxStatusTextLength] runes.
func NewPresence(text, emoji string) PresenceUpdate {
	runes := []rune(text)
	if len(runes) > MaxStatusTextLength {
		text = string(runes[:MaxStatusTextLength-1]) + "…"
	}
	return PresenceUpdate{StatusText: text, StatusEmoji: emoji}
}

// IsClear reports whether the update clears the status.
func (p PresenceUpdate) IsClear() bool {
	return p.StatusText == "" && p.StatusEmoji == ""
}

// Play is a track that was published as presence.
type Play struct {
	ID         string
	TrackName  string
	ArtistName string
	DurationMS int
	PlayedAt   time.Time
}
