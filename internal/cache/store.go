// Package cache holds the derived read views (playlist, ownership, stream
// status) in Redis and serves them stale-while-revalidate.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/models"
)

// ErrMiss is returned when no snapshot is stored for a cache type
var ErrMiss = errors.New("cache miss")

const keyPrefix = "cache:"

// Store reads and writes snapshots in Redis
type Store struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore creates a snapshot store whose entries expire after ttl
func NewStore(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func snapshotKey(t models.CacheType) string {
	return keyPrefix + string(t)
}

func lockKey(t models.CacheType) string {
	return keyPrefix + "lock:" + string(t)
}

// Get returns the stored snapshot or ErrMiss
func (s *Store) Get(ctx context.Context, t models.CacheType) (*models.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, snapshotKey(t)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s snapshot: %w", t, err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		// A corrupt entry behaves like a miss and gets overwritten.
		s.logger.Warn("discarding unreadable snapshot",
			zap.String("cache_type", string(t)),
			zap.Error(err),
		)
		return nil, ErrMiss
	}

	return &snapshot, nil
}

// Put stores payload as the current snapshot with the store's TTL
func (s *Store) Put(ctx context.Context, t models.CacheType, payload interface{}) (*models.Snapshot, error) {
	return s.PutTTL(ctx, t, payload, s.ttl)
}

// PutTTL stores payload as the current snapshot with an explicit TTL
func (s *Store) PutTTL(ctx context.Context, t models.CacheType, payload interface{}, ttl time.Duration) (*models.Snapshot, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}

	snapshot := &models.Snapshot{
		Payload:    body,
		CapturedAt: time.Now().UTC(),
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s snapshot: %w", t, err)
	}

	if err := s.rdb.Set(ctx, snapshotKey(t), raw, ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to write %s snapshot: %w", t, err)
	}

	s.logger.Debug("cache set",
		zap.String("cache_type", string(t)),
		zap.Duration("ttl", ttl),
	)

	return snapshot, nil
}

// Invalidate deletes the snapshots of the given types. Deleting an absent
// snapshot is not an error.
func (s *Store) Invalidate(ctx context.Context, types ...models.CacheType) error {
	if len(types) == 0 {
		return nil
	}

	keys := make([]string, len(types))
	for i, t := range types {
		keys[i] = snapshotKey(t)
	}

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return nil
}

// TryLock takes the refresh lock of a cache type for at most ttl
func (s *Store) TryLock(ctx context.Context, t models.CacheType, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(t), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to take %s refresh lock: %w", t, err)
	}
	return ok, nil
}

// Unlock releases the refresh lock of a cache type
func (s *Store) Unlock(ctx context.Context, t models.CacheType) error {
	return s.rdb.Del(ctx, lockKey(t)).Err()
}
