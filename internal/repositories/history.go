package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
)

// HistoryRepository persists [models.Play] rows.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new [HistoryRepository] with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record inserts a play, generating its ID and timestamp when unset.
func (r *HistoryRepository) Record(ctx context.Context, play *models.Play) error {
	if play.TrackName == "" {
		return fmt.Errorf("%w: play has no track name", shared.ErrInvalidInput)
	}
	if play.ID == "" {
		play.ID = shared.GenerateID()
	}
	if play.PlayedAt.IsZero() {
		play.PlayedAt = time.Now()
	}
	play.PlayedAt = play.PlayedAt.UTC()

	query := `
		INSERT INTO plays (id, track_name, artist_name, duration_ms, played_at) VALUES (?, ?, ?, ?, ?)
	`

	if _, err := r.db.ExecContext(ctx, query, play.ID, play.TrackName, play.ArtistName, play.DurationMS, play.PlayedAt); err != nil {
		return fmt.Errorf("failed to insert play: %w", err)
	}
	return nil
}

// Recent returns up to limit plays, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]models.Play, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, track_name, artist_name, duration_ms, played_at
		FROM plays
		ORDER BY played_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []models.Play
	for rows.Next() {
		var p models.Play
		if err := rows.Scan(&p.ID, &p.TrackName, &p.ArtistName, &p.DurationMS, &p.PlayedAt); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		plays = append(plays, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plays: %w", err)
	}
	return plays, nil
}
