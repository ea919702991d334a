package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/fansite/internal/models"
)

// DefaultRefreshBuffer is how close to expiry a stored token gets refreshed
const DefaultRefreshBuffer = 5 * time.Minute

// Refresher hands out a stored token, refreshing it through OAuth when it is
// about to expire and persisting the refreshed token back to the store.
type Refresher struct {
	store  *Store
	key    string
	oauth  *oauth2.Config
	buffer time.Duration
	seed   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewRefresher creates a refresher for the credential under key. seed is a
// refresh token used when nothing is stored yet; it may be empty.
func NewRefresher(store *Store, key string, oauthConfig *oauth2.Config, seed string, logger *zap.Logger) *Refresher {
	return &Refresher{
		store:  store,
		key:    key,
		oauth:  oauthConfig,
		buffer: DefaultRefreshBuffer,
		seed:   seed,
		logger: logger,
	}
}

// Token returns a token valid for at least the refresh buffer
func (r *Refresher) Token(ctx context.Context) (*models.UpstreamToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.Load(ctx, r.key)
	if errors.Is(err, ErrNotFound) {
		if r.seed == "" {
			return nil, ErrNotFound
		}
		current = &models.UpstreamToken{RefreshToken: r.seed}
	} else if err != nil {
		return nil, err
	}

	if !current.NeedsRefresh(r.buffer) {
		return current, nil
	}

	if current.RefreshToken == "" {
		return nil, fmt.Errorf("credential %s expired and has no refresh token", r.key)
	}

	r.logger.Info("upstream token expiring soon, refreshing",
		zap.String("key", r.key),
		zap.Time("expiry", current.Expiry),
	)

	// Without an access token the token source always refreshes.
	source := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	fresh, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh credential %s: %w", r.key, err)
	}

	refreshed := Merge(current, fresh)
	if err := r.store.Save(ctx, r.key, refreshed); err != nil {
		return nil, err
	}

	return refreshed, nil
}

// Merge builds the stored form of a freshly issued token, keeping the previous
// refresh token and owner when the provider does not send them again.
func Merge(previous *models.UpstreamToken, fresh *oauth2.Token) *models.UpstreamToken {
	merged := &models.UpstreamToken{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		TokenType:    fresh.TokenType,
		Expiry:       fresh.Expiry,
		ObtainedAt:   time.Now().UTC(),
		Scope:        ScopeOf(fresh),
	}

	if previous != nil {
		if merged.RefreshToken == "" {
			merged.RefreshToken = previous.RefreshToken
		}
		if len(merged.Scope) == 0 {
			merged.Scope = previous.Scope
		}
		merged.OwnerID = previous.OwnerID
		merged.OwnerName = previous.OwnerName
	}

	return merged
}

// ScopeOf extracts the granted scopes from a token response. Twitch returns a
// JSON array, Spotify a space separated string.
func ScopeOf(token *oauth2.Token) []string {
	switch v := token.Extra("scope").(type) {
	case []interface{}:
		scopes := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	case string:
		return strings.Fields(v)
	}
	return nil
}
