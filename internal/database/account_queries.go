package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/parsascontentcorner/fansite/internal/models"
)

const accountColumns = `id, twitch_id, display_name, session_id, is_subscriber, subscription_tier,
	is_gifted_sub, is_owner, is_trusted, is_banned, created_at, updated_at`

func scanAccount(row rowScanner) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID,
		&account.TwitchID,
		&account.DisplayName,
		&account.SessionID,
		&account.IsSubscriber,
		&account.SubscriptionTier,
		&account.IsGiftedSub,
		&account.IsOwner,
		&account.IsTrusted,
		&account.IsBanned,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// UpsertAccount creates the account on first login or rotates its session and
// display name on every later login
func (db *DB) UpsertAccount(ctx context.Context, profile *models.AccountProfile) (*models.Account, error) {
	query := `
		INSERT INTO accounts (twitch_id, display_name, session_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (twitch_id)
		DO UPDATE SET
			display_name = EXCLUDED.display_name,
			session_id = EXCLUDED.session_id,
			updated_at = NOW()
		RETURNING ` + accountColumns

	account, err := scanAccount(db.QueryRowContext(ctx, query,
		profile.TwitchID,
		profile.DisplayName,
		profile.SessionID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	return account, nil
}

// GetAccountBySession resolves a session token to its account
func (db *DB) GetAccountBySession(ctx context.Context, sessionID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE session_id = $1`

	account, err := scanAccount(db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by session: %w", err)
	}

	return account, nil
}

// GetAccountByTwitchID retrieves an account by its Twitch id
func (db *DB) GetAccountByTwitchID(ctx context.Context, twitchID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE twitch_id = $1`

	account, err := scanAccount(db.QueryRowContext(ctx, query, twitchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// UpdateSubscription stores the broadcaster subscription state of an account
func (db *DB) UpdateSubscription(ctx context.Context, twitchID string, sub models.Subscription) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET is_subscriber = $2, subscription_tier = $3, is_gifted_sub = $4, updated_at = NOW()
		WHERE twitch_id = $1
		RETURNING ` + accountColumns

	var tier sql.NullString
	if sub.IsSubscriber && sub.Tier != models.TierNone {
		tier = sql.NullString{String: sub.Tier.String(), Valid: true}
	}

	account, err := scanAccount(db.QueryRowContext(ctx, query, twitchID, sub.IsSubscriber, tier, sub.IsGift))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	return account, nil
}

// SetOwner sets or clears the owner flag
func (db *DB) SetOwner(ctx context.Context, twitchID string, owner bool) (*models.Account, error) {
	return db.updateFlag(ctx, "is_owner", twitchID, owner)
}

// SetTrusted sets or clears the trusted flag
func (db *DB) SetTrusted(ctx context.Context, twitchID string, trusted bool) (*models.Account, error) {
	return db.updateFlag(ctx, "is_trusted", twitchID, trusted)
}

// SetBanned sets or clears the banned flag. Banning also replaces the session
// token so sessions issued before the ban stop resolving.
func (db *DB) SetBanned(ctx context.Context, twitchID string, banned bool, rotatedSession string) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET is_banned = $2,
			session_id = CASE WHEN $2 THEN $3 ELSE session_id END,
			updated_at = NOW()
		WHERE twitch_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(db.QueryRowContext(ctx, query, twitchID, banned, rotatedSession))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update banned flag: %w", err)
	}

	return account, nil
}

// updateFlag toggles one of the boolean role columns; column is never user input
func (db *DB) updateFlag(ctx context.Context, column, twitchID string, value bool) (*models.Account, error) {
	query := `UPDATE accounts SET ` + column + ` = $2, updated_at = NOW() WHERE twitch_id = $1 RETURNING ` + accountColumns

	account, err := scanAccount(db.QueryRowContext(ctx, query, twitchID, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", column, err)
	}

	return account, nil
}

// CountAccounts returns the number of known accounts
func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}
