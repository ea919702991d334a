package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/models"
)

// Track URIs known to MockSpotifyServer
const (
	TrackOne   = "spotify:track:4uLU6hMCjMI75M1A2tKUQC"
	TrackTwo   = "spotify:track:7GhIk7Il098yCjg4BQjzvb"
	TrackThree = "spotify:track:3n3Ppam7vgaVa1iaRUc9Lp"
)

// GenerateProfile creates a login profile with a fresh session id
func GenerateProfile(twitchID string) *models.AccountProfile {
	return &models.AccountProfile{
		TwitchID:    twitchID,
		DisplayName: fmt.Sprintf("viewer_%s", twitchID),
		SessionID:   GenerateSessionID(),
	}
}

// AccountCreator is the store method fixtures need to create accounts
type AccountCreator interface {
	UpsertAccount(ctx context.Context, profile *models.AccountProfile) (*models.Account, error)
	UpdateSubscription(ctx context.Context, twitchID string, sub models.Subscription) (*models.Account, error)
}

// CreateSubscriber creates an account subscribed at the given tier
func CreateSubscriber(ctx context.Context, db AccountCreator, twitchID string, tier models.Tier) (*models.Account, error) {
	if _, err := db.UpsertAccount(ctx, GenerateProfile(twitchID)); err != nil {
		return nil, err
	}
	return db.UpdateSubscription(ctx, twitchID, models.Subscription{IsSubscriber: true, Tier: tier})
}

// GenerateOAuthState creates a test OAuth state for the given flow.
func GenerateOAuthState(purpose string) *models.OAuthState {
	return &models.OAuthState{
		State:     GenerateRandomState(),
		Purpose:   purpose,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}
}

// GenerateExpiredOAuthState creates an OAuth state that is already expired.
func GenerateExpiredOAuthState(purpose string) *models.OAuthState {
	return &models.OAuthState{
		State:     GenerateRandomState(),
		Purpose:   purpose,
		CreatedAt: time.Now().UTC().Add(-15 * time.Minute),
		ExpiresAt: time.Now().UTC().Add(-5 * time.Minute),
	}
}

// GenerateUpstreamToken creates a credential that is valid for an hour
func GenerateUpstreamToken(ownerID string) *models.UpstreamToken {
	return &models.UpstreamToken{
		AccessToken:  "upstream_access_token",
		RefreshToken: "upstream_refresh_token",
		TokenType:    "Bearer",
		Scope:        []string{"channel:read:subscriptions"},
		Expiry:       time.Now().Add(time.Hour),
		ObtainedAt:   time.Now(),
		OwnerID:      ownerID,
	}
}

// GenerateRandomState generates a random state string (32 bytes, hex-encoded).
func GenerateRandomState() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random state: %v", err))
	}
	return hex.EncodeToString(b)
}

// GenerateSessionID generates a random session ID (UUID).
func GenerateSessionID() string {
	return uuid.New().String()
}

// GenerateEncryptionKey generates a 32-byte encryption key for testing.
func GenerateEncryptionKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("failed to generate encryption key: %v", err))
	}
	return key
}

// GenerateTestConfig creates a test configuration with valid values.
// Uses a generated encryption key and test database credentials.
func GenerateTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPPort:       "8080",
			Host:           "localhost",
			Env:            "test",
			PublicBaseURL:  "http://localhost:8080",
			AllowedOrigins: []string{"*"},
			RequestTimeout: 10 * time.Second,
		},
		Twitch: config.TwitchConfig{
			ClientID:         "test_client_id",
			ClientSecret:     "test_client_secret",
			BroadcasterID:    BroadcasterID,
			BroadcasterLogin: "august",
			AdminID:          BroadcasterID,
			AdminRedirectURI: "http://localhost:8080/api/admin/twitch/callback",
			AdminScopes:      []string{"channel:read:subscriptions"},
			EventSubSecret:   "eventsub_test_secret",
		},
		Spotify: config.SpotifyConfig{
			ClientID:     "spotify_client_id",
			ClientSecret: "spotify_client_secret",
			RefreshToken: "spotify_refresh_token",
			PlaylistID:   PlaylistID,
		},
		Database: config.DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "testuser",
			Password:     "testpass",
			Name:         "testdb",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
		Redis: config.RedisConfig{Addr: "localhost:6379"},
		Cache: config.CacheConfig{
			Freshness: time.Minute,
			EntryTTL:  24 * time.Hour,
		},
		Quota: config.QuotaConfig{
			Tier1Daily: 3,
			Tier2Daily: 5,
			Tier3Daily: 10,
			CounterTTL: 48 * time.Hour,
		},
		Security: config.SecurityConfig{
			TokenEncryptionKey: GenerateEncryptionKey(),
			StateExpiryMinutes: 10,
			ReconcileInterval:  5 * time.Minute,
			PendingGrace:       2 * time.Minute,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "console",
		},
	}
}
