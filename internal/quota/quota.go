// Package quota enforces the per-account daily track-add ceilings.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/models"
)

// Status is an account's usage for the current day
type Status struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Exceeded reports whether no adds remain today
func (s Status) Exceeded() bool {
	return s.Used >= s.Limit
}

// Remaining returns how many adds are left today
func (s Status) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Limiter counts adds per Twitch id per UTC day in Redis. Check and Consume
// are separate calls, so concurrent adds may overshoot the ceiling by a few.
type Limiter struct {
	rdb    redis.Cmdable
	limits map[models.Tier]int
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewLimiter creates a quota limiter from the tier ceilings in cfg
func NewLimiter(rdb redis.Cmdable, cfg config.QuotaConfig, logger *zap.Logger) *Limiter {
	return &Limiter{
		rdb: rdb,
		limits: map[models.Tier]int{
			models.Tier1: cfg.Tier1Daily,
			models.Tier2: cfg.Tier2Daily,
			models.Tier3: cfg.Tier3Daily,
		},
		ttl:    cfg.CounterTTL,
		now:    time.Now,
		logger: logger,
	}
}

// LimitFor returns the daily ceiling of a tier; accounts without a tier get none
func (l *Limiter) LimitFor(tier models.Tier) int {
	return l.limits[tier]
}

func (l *Limiter) key(twitchID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", twitchID, l.now().UTC().Format("2006-01-02"))
}

// Check returns today's usage for the account without changing it
func (l *Limiter) Check(ctx context.Context, twitchID string, tier models.Tier) (Status, error) {
	status := Status{Limit: l.LimitFor(tier)}

	raw, err := l.rdb.Get(ctx, l.key(twitchID)).Result()
	if errors.Is(err, redis.Nil) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("failed to read quota counter: %w", err)
	}

	used, err := strconv.Atoi(raw)
	if err != nil {
		return status, fmt.Errorf("invalid quota counter %q: %w", raw, err)
	}
	status.Used = used
	return status, nil
}

// Consume records one add for today and returns the new count. The counter
// expires after the configured TTL, set when it is created or found without one.
func (l *Limiter) Consume(ctx context.Context, twitchID string) (int, error) {
	key := l.key(twitchID)

	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment quota counter: %w", err)
	}

	count := int(incr.Val())
	if ttl.Val() < 0 {
		if err := l.rdb.Expire(ctx, key, l.ttl).Err(); err != nil {
			l.logger.Warn("failed to set quota counter expiry",
				zap.String("twitch_id", twitchID),
				zap.Error(err),
			)
		}
	}

	l.logger.Debug("quota consumed",
		zap.String("twitch_id", twitchID),
		zap.Int("count", count),
	)
	return count, nil
}
