package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/nowplaying/internal/formatter"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
)

// StatusView is everything the status command reports.
type StatusView struct {
	Storage    string             // Where the credential lives
	Credential *models.Credential // nil when not authorized
	Playback   *models.PlaybackState
	PollError  error
	NextPoll   time.Duration
}

// RenderStatus lays out a [StatusView] as labelled rows.
func (p *Palette) RenderStatus(v StatusView) string {
	rows := []string{p.Title("nowplaying status")}

	rows = append(rows, p.Field("storage", v.Storage))
	if v.Credential == nil || v.Credential.IsZero() {
		rows = append(rows, p.Field("credential", p.Err("✗ not authorized")), "", p.Help("run `nowplaying auth` to authorize"))
		return lipgloss.JoinVertical(lipgloss.Left, rows...)
	}

	rows = append(rows,
		p.Field("credential", p.OK("✓ authorized")),
		p.Field("access token", shared.MaskSecret(v.Credential.AccessToken)),
		p.Field("refresh token", shared.MaskSecret(v.Credential.RefreshToken)),
		p.Field("expires in", fmt.Sprintf("%ds", v.Credential.ExpiresIn)),
	)

	switch {
	case v.PollError != nil:
		rows = append(rows, p.Field("playback", p.Err(v.PollError.Error())))
	case v.Playback == nil || !v.Playback.IsPlaying:
		rows = append(rows, p.Field("playback", p.Warn("nothing playing")))
	default:
		rows = append(rows,
			p.Field("playback", p.OK(v.Playback.Label())),
			p.Field("progress", progress(v.Playback)),
		)
	}
	if v.PollError == nil {
		rows = append(rows, p.Field("next poll", v.NextPoll.Round(time.Millisecond).String()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func progress(s *models.PlaybackState) string {
	const width = 20
	if s.DurationMS <= 0 {
		return ""
	}
	filled := min(width, max(0, s.ProgressMS*width/s.DurationMS))
	return fmt.Sprintf("[%s%s] %s / %s",
		strings.Repeat("#", filled), strings.Repeat("-", width-filled),
		formatter.FormatDuration(s.ProgressMS), formatter.FormatDuration(s.DurationMS))
}
