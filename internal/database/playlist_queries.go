package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parsascontentcorner/fansite/internal/models"
)

const entryColumns = `id, track_uri, twitch_id, status, created_at, confirmed_at`

func scanEntry(row rowScanner) (*models.PlaylistEntry, error) {
	entry := &models.PlaylistEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.TrackURI,
		&entry.TwitchID,
		&entry.Status,
		&entry.CreatedAt,
		&entry.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ReserveEntry writes a pending provenance row for a track about to be added upstream.
// Returns ErrDuplicateEntry when the track already has an owner.
func (db *DB) ReserveEntry(ctx context.Context, trackURI, twitchID string) (*models.PlaylistEntry, error) {
	query := `
		INSERT INTO playlist_entries (track_uri, twitch_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING ` + entryColumns

	entry, err := scanEntry(db.QueryRowContext(ctx, query, trackURI, twitchID))
	if isUniqueViolation(err) {
		return nil, ErrDuplicateEntry
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve playlist entry: %w", err)
	}

	return entry, nil
}

// ConfirmEntry marks a provenance row as accepted upstream
func (db *DB) ConfirmEntry(ctx context.Context, id int64) error {
	query := `
		UPDATE playlist_entries
		SET status = 'confirmed', confirmed_at = NOW()
		WHERE id = $1
	`
	return db.execOne(ctx, query, ErrEntryNotFound, id)
}

// DeleteEntry removes a provenance row by id
func (db *DB) DeleteEntry(ctx context.Context, id int64) error {
	return db.execOne(ctx, `DELETE FROM playlist_entries WHERE id = $1`, ErrEntryNotFound, id)
}

// GetEntryByTrack retrieves the provenance row of a track
func (db *DB) GetEntryByTrack(ctx context.Context, trackURI string) (*models.PlaylistEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM playlist_entries WHERE track_uri = $1`

	entry, err := scanEntry(db.QueryRowContext(ctx, query, trackURI))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist entry: %w", err)
	}

	return entry, nil
}

// GetOwnership builds the track -> adder map from confirmed provenance rows
func (db *DB) GetOwnership(ctx context.Context) (models.Ownership, error) {
	query := `
		SELECT pe.track_uri, pe.twitch_id, COALESCE(a.display_name, '')
		FROM playlist_entries pe
		LEFT JOIN accounts a ON a.twitch_id = pe.twitch_id
		WHERE pe.status = 'confirmed'
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get ownership: %w", err)
	}
	defer rows.Close()

	ownership := make(models.Ownership)
	for rows.Next() {
		var trackURI string
		var adder models.Adder
		if err := rows.Scan(&trackURI, &adder.TwitchID, &adder.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan ownership: %w", err)
		}
		ownership[trackURI] = models.OwnershipRecord{AddedBy: adder}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ownership: %w", err)
	}

	return ownership, nil
}

// ListStalePendingEntries returns pending rows created before now-grace
func (db *DB) ListStalePendingEntries(ctx context.Context, grace time.Duration) ([]*models.PlaylistEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM playlist_entries
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at`

	rows, err := db.QueryContext(ctx, query, time.Now().Add(-grace))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.PlaylistEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending entries: %w", err)
	}

	return entries, nil
}

// execOne runs a statement that must affect exactly one row
func (db *DB) execOne(ctx context.Context, query string, notFound error, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
