// package formatter renders play history in various formats (CSV, Markdown, JSON, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
)

// Format names accepted by [Write].
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
	FormatJSON     = "json"
)

// Formats lists every supported format.
var Formats = []string{FormatText, FormatCSV, FormatMarkdown, FormatJSON}

// FormatDuration renders milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// HistoryToCSV converts plays to CSV with columns: ID, Played At, Artist, Track, Duration
func HistoryToCSV(plays []models.Play) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Played At", "Artist", "Track", "Duration"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, p := range plays {
		record := []string{
			p.ID,
			p.PlayedAt.Format(time.RFC3339),
			p.ArtistName,
			p.TrackName,
			strconv.Itoa(p.DurationMS / 1000),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// HistoryToMarkdown renders plays as a Markdown list grouped under one heading
func HistoryToMarkdown(plays []models.Play) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Recently Played\n\n")
	buf.WriteString(fmt.Sprintf("**Plays**: %d\n\n", len(plays)))

	for i, p := range plays {
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s] _%s_\n",
			i+1, escapeMarkdown(p.ArtistName), escapeMarkdown(p.TrackName),
			FormatDuration(p.DurationMS), p.PlayedAt.Local().Format("2006-01-02 15:04")))
	}

	return buf.Bytes()
}

// HistoryToText renders plays one per line
func HistoryToText(plays []models.Play) []byte {
	var buf bytes.Buffer

	if len(plays) == 0 {
		buf.WriteString("No plays recorded\n")
		return buf.Bytes()
	}

	for _, p := range plays {
		buf.WriteString(fmt.Sprintf("%s  %s - %s (%s)\n",
			p.PlayedAt.Local().Format("2006-01-02 15:04"), p.ArtistName, p.TrackName, FormatDuration(p.DurationMS)))
	}
	return buf.Bytes()
}

type playJSON struct {
	ID         string    `json:"id"`
	TrackName  string    `json:"track"`
	ArtistName string    `json:"artist"`
	DurationMS int       `json:"duration_ms"`
	PlayedAt   time.Time `json:"played_at"`
}

// HistoryToJSON renders plays as an indented JSON array
func HistoryToJSON(plays []models.Play) ([]byte, error) {
	out := make([]playJSON, 0, len(plays))
	for _, p := range plays {
		out = append(out, playJSON{ID: p.ID, TrackName: p.TrackName, ArtistName: p.ArtistName, DurationMS: p.DurationMS, PlayedAt: p.PlayedAt})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Write renders plays in format to w.
func Write(w io.Writer, format string, plays []models.Play) error {
	var data []byte
	var err error

	switch strings.ToLower(format) {
	case FormatText, "":
		data = HistoryToText(plays)
	case FormatCSV:
		data, err = HistoryToCSV(plays)
	case FormatMarkdown, "markdown":
		data = HistoryToMarkdown(plays)
	case FormatJSON:
		data, err = HistoryToJSON(plays)
	default:
		return fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

var markdownEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
