// Package credentials keeps the upstream OAuth tokens the service acts with
// (the broadcaster's Twitch token and the playlist owner's Spotify token)
// encrypted in Redis, and refreshes them before they expire.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/models"
)

// Redis keys of the stored credentials
const (
	KeyTwitchAdmin = "twitch:admin:auth"
	KeySpotify     = "spotify:credentials"
)

// ErrNotFound is returned when no credential is stored under a key
var ErrNotFound = errors.New("credential not found")

// Store persists upstream tokens encrypted with AES-256-GCM
type Store struct {
	rdb           redis.Cmdable
	encryptionKey []byte
	logger        *zap.Logger
}

// NewStore creates a credential store
func NewStore(rdb redis.Cmdable, encryptionKey []byte, logger *zap.Logger) *Store {
	return &Store{
		rdb:           rdb,
		encryptionKey: encryptionKey,
		logger:        logger,
	}
}

// Save encrypts and stores a token. Credentials do not expire in Redis.
func (s *Store) Save(ctx context.Context, key string, token *models.UpstreamToken) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	sealed, err := s.Encrypt(string(raw))
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	if err := s.rdb.Set(ctx, key, sealed, 0).Err(); err != nil {
		return fmt.Errorf("failed to store credential %s: %w", key, err)
	}

	s.logger.Debug("stored credential",
		zap.String("key", key),
		zap.Time("expiry", token.Expiry),
	)
	return nil
}

// Load retrieves and decrypts a token
func (s *Store) Load(ctx context.Context, key string) (*models.UpstreamToken, error) {
	sealed, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential %s: %w", key, err)
	}

	raw, err := s.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential %s: %w", key, err)
	}

	var token models.UpstreamToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential %s: %w", key, err)
	}
	return &token, nil
}

// Delete removes a stored token
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", key, err)
	}
	return nil
}

// Encrypt encrypts plaintext using AES-256-GCM
func (s *Store) Encrypt(plaintext string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a value produced by Encrypt
func (s *Store) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func (s *Store) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
