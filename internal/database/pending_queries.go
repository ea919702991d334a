package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/parsascontentcorner/fansite/internal/models"
)

const pendingColumns = `id, spotify_id, track_name, track_artists, track_album, external_url,
	added_by_twitch_id, added_by_display_name, created_at`

func scanPendingSong(row rowScanner) (*models.PendingSong, error) {
	song := &models.PendingSong{}
	err := row.Scan(
		&song.ID,
		&song.SpotifyID,
		&song.TrackName,
		&song.TrackArtists,
		&song.TrackAlbum,
		&song.ExternalURL,
		&song.AddedByTwitchID,
		&song.AddedByDisplayName,
		&song.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return song, nil
}

// CreatePendingSong queues a track for owner approval.
// Returns ErrDuplicateEntry when the track is already queued.
func (db *DB) CreatePendingSong(ctx context.Context, song *models.PendingSong) error {
	query := `
		INSERT INTO pending_songs (spotify_id, track_name, track_artists, track_album, external_url,
			added_by_twitch_id, added_by_display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := db.QueryRowContext(ctx, query,
		song.SpotifyID,
		song.TrackName,
		song.TrackArtists,
		song.TrackAlbum,
		song.ExternalURL,
		song.AddedByTwitchID,
		song.AddedByDisplayName,
	).Scan(&song.ID, &song.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to create pending song: %w", err)
	}

	return nil
}

// ListPendingSongs returns the moderation queue, oldest first
func (db *DB) ListPendingSongs(ctx context.Context) ([]*models.PendingSong, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+pendingColumns+` FROM pending_songs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending songs: %w", err)
	}
	defer rows.Close()

	songs := make([]*models.PendingSong, 0)
	for rows.Next() {
		song, err := scanPendingSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending song: %w", err)
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending songs: %w", err)
	}

	return songs, nil
}

// GetPendingSong retrieves a queued track by its Spotify URI
func (db *DB) GetPendingSong(ctx context.Context, spotifyID string) (*models.PendingSong, error) {
	song, err := scanPendingSong(db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_songs WHERE spotify_id = $1`, spotifyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPendingSongNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending song: %w", err)
	}

	return song, nil
}

// DeletePendingSong removes a track from the moderation queue
func (db *DB) DeletePendingSong(ctx context.Context, spotifyID string) error {
	return db.execOne(ctx, `DELETE FROM pending_songs WHERE spotify_id = $1`, ErrPendingSongNotFound, spotifyID)
}
