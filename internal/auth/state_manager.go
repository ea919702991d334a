package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/parsascontentcorner/fansite/internal/models"
)

// StateStore persists single-use OAuth states
type StateStore interface {
	CreateOAuthState(ctx context.Context, state *models.OAuthState) error
	ValidateAndDeleteOAuthState(ctx context.Context, state string) (*models.OAuthState, error)
}

// StateManager handles OAuth state generation and validation
type StateManager struct {
	db                 StateStore
	stateExpiryMinutes int
}

// NewStateManager creates a new state manager
func NewStateManager(db StateStore, stateExpiryMinutes int) *StateManager {
	return &StateManager{
		db:                 db,
		stateExpiryMinutes: stateExpiryMinutes,
	}
}

// GenerateState generates a cryptographically secure random state
func (sm *StateManager) GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// StoreState stores a state for the given flow with an expiry time
func (sm *StateManager) StoreState(ctx context.Context, state, purpose string) error {
	oauthState := &models.OAuthState{
		State:     state,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(time.Duration(sm.stateExpiryMinutes) * time.Minute),
	}

	if err := sm.db.CreateOAuthState(ctx, oauthState); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}

	return nil
}

// ValidateState consumes a state and checks it was issued for purpose
func (sm *StateManager) ValidateState(ctx context.Context, state, purpose string) error {
	oauthState, err := sm.db.ValidateAndDeleteOAuthState(ctx, state)
	if err != nil {
		return fmt.Errorf("state validation failed: %w", err)
	}
	if oauthState.Purpose != purpose {
		return fmt.Errorf("state validation failed: issued for %q", oauthState.Purpose)
	}

	return nil
}
