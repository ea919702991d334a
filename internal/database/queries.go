package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/models"
)

// CreateOAuthState creates a new OAuth state for CSRF protection
func (db *DB) CreateOAuthState(ctx context.Context, state *models.OAuthState) error {
	query := `
		INSERT INTO oauth_states (state, purpose, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := db.QueryRowContext(ctx, query,
		state.State,
		state.Purpose,
		state.ExpiresAt,
	).Scan(&state.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create oauth state: %w", err)
	}

	return nil
}

// ValidateAndDeleteOAuthState validates and deletes an OAuth state (single-use)
func (db *DB) ValidateAndDeleteOAuthState(ctx context.Context, state string) (*models.OAuthState, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		DELETE FROM oauth_states
		WHERE state = $1
		RETURNING state, purpose, created_at, expires_at
	`

	oauthState := &models.OAuthState{}
	err = tx.QueryRowContext(ctx, query, state).Scan(
		&oauthState.State,
		&oauthState.Purpose,
		&oauthState.CreatedAt,
		&oauthState.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate oauth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	// the row is consumed even when expired
	if oauthState.IsExpired() {
		return nil, ErrStateExpired
	}

	return oauthState, nil
}

// CleanupExpiredStates deletes expired OAuth states
func (db *DB) CleanupExpiredStates(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired oauth states: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n, nil
}

// StartCleanupJob periodically removes expired OAuth states until ctx is cancelled
func (db *DB) StartCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := db.CleanupExpiredStates(ctx)
				if err != nil {
					db.logger.Error("failed to cleanup expired oauth states", zap.Error(err))
					continue
				}
				if n > 0 {
					db.logger.Debug("cleaned up expired oauth states", zap.Int64("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	db.logger.Info("started cleanup job", zap.Duration("interval", interval))
}
