package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/parsascontentcorner/fansite/internal/models"
)

const apologyColumns = `id, twitch_id, twitch_username, subject, apology_text, session_id, created_at, updated_at`

func scanApology(row rowScanner) (*models.Apology, error) {
	apology := &models.Apology{}
	err := row.Scan(
		&apology.ID,
		&apology.TwitchID,
		&apology.TwitchUsername,
		&apology.Subject,
		&apology.Body,
		&apology.SessionID,
		&apology.CreatedAt,
		&apology.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return apology, nil
}

// EnsureApology creates the apology row at login without touching submitted content
func (db *DB) EnsureApology(ctx context.Context, twitchID, username, sessionID string) (*models.Apology, error) {
	query := `
		INSERT INTO apologies (twitch_id, twitch_username, session_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (twitch_id)
		DO UPDATE SET
			twitch_username = EXCLUDED.twitch_username,
			session_id = EXCLUDED.session_id,
			updated_at = apologies.updated_at
		RETURNING ` + apologyColumns

	apology, err := scanApology(db.QueryRowContext(ctx, query, twitchID, username, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure apology: %w", err)
	}

	return apology, nil
}

// SubmitApology upserts the apology keyed by Twitch id, merging the new subject and body
func (db *DB) SubmitApology(ctx context.Context, apology *models.Apology) error {
	query := `
		INSERT INTO apologies (twitch_id, twitch_username, subject, apology_text, session_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (twitch_id)
		DO UPDATE SET
			twitch_username = EXCLUDED.twitch_username,
			subject = EXCLUDED.subject,
			apology_text = EXCLUDED.apology_text,
			session_id = EXCLUDED.session_id,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := db.QueryRowContext(ctx, query,
		apology.TwitchID,
		apology.TwitchUsername,
		apology.Subject,
		apology.Body,
		apology.SessionID,
	).Scan(&apology.ID, &apology.CreatedAt, &apology.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to submit apology: %w", err)
	}

	return nil
}

// GetApologyByTwitchID retrieves the apology of a Twitch user
func (db *DB) GetApologyByTwitchID(ctx context.Context, twitchID string) (*models.Apology, error) {
	query := `SELECT ` + apologyColumns + ` FROM apologies WHERE twitch_id = $1`

	apology, err := scanApology(db.QueryRowContext(ctx, query, twitchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrApologyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get apology: %w", err)
	}

	return apology, nil
}

// ListPublishedApologies returns a page of submitted apologies, newest first,
// together with the total number of submitted apologies
func (db *DB) ListPublishedApologies(ctx context.Context, limit, offset int) ([]*models.Apology, int, error) {
	const published = `apology_text IS NOT NULL AND apology_text <> ''`

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM apologies WHERE `+published).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count apologies: %w", err)
	}

	query := `SELECT ` + apologyColumns + ` FROM apologies WHERE ` + published + `
		ORDER BY updated_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list apologies: %w", err)
	}
	defer rows.Close()

	apologies := make([]*models.Apology, 0, limit)
	for rows.Next() {
		apology, err := scanApology(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan apology: %w", err)
		}
		apologies = append(apologies, apology)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating apologies: %w", err)
	}

	return apologies, total, nil
}
