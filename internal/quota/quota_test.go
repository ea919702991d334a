package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/models"
)

func setupLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter := NewLimiter(rdb, config.QuotaConfig{
		Tier1Daily: 3,
		Tier2Daily: 5,
		Tier3Daily: 10,
		CounterTTL: 48 * time.Hour,
	}, zap.NewNop())
	limiter.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return limiter, mr
}

func TestLimitFor(t *testing.T) {
	limiter, _ := setupLimiter(t)

	assert.Equal(t, 0, limiter.LimitFor(models.TierNone))
	assert.Equal(t, 3, limiter.LimitFor(models.Tier1))
	assert.Equal(t, 5, limiter.LimitFor(models.Tier2))
	assert.Equal(t, 10, limiter.LimitFor(models.Tier3))
}

func TestConsume_SetsExpiryOnce(t *testing.T) {
	limiter, mr := setupLimiter(t)
	ctx := context.Background()

	count, err := limiter.Consume(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 48*time.Hour, mr.TTL("ratelimit:42:2024-05-01"))

	mr.FastForward(time.Hour)
	count, err = limiter.Consume(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 47*time.Hour, mr.TTL("ratelimit:42:2024-05-01"), "expiry is not extended")
}

func TestConsume_RepairsMissingExpiry(t *testing.T) {
	limiter, mr := setupLimiter(t)

	require.NoError(t, mr.Set("ratelimit:42:2024-05-01", "2"))
	require.Zero(t, mr.TTL("ratelimit:42:2024-05-01"))

	count, err := limiter.Consume(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 48*time.Hour, mr.TTL("ratelimit:42:2024-05-01"))
}

func TestCheck_AtCeiling(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Consume(ctx, "42")
		require.NoError(t, err)
	}

	status, err := limiter.Check(ctx, "42", models.Tier1)
	require.NoError(t, err)
	assert.True(t, status.Exceeded())
	assert.Equal(t, 0, status.Remaining())

	status, err = limiter.Check(ctx, "42", models.Tier2)
	require.NoError(t, err)
	assert.False(t, status.Exceeded())
	assert.Equal(t, 2, status.Remaining())
}

func TestCheck_NewDayResets(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	_, err := limiter.Consume(ctx, "42")
	require.NoError(t, err)

	limiter.now = func() time.Time { return time.Date(2024, 5, 2, 0, 0, 1, 0, time.UTC) }
	status, err := limiter.Check(ctx, "42", models.Tier1)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Used)
}

func TestCheck_NoTierIsExceeded(t *testing.T) {
	limiter, _ := setupLimiter(t)

	status, err := limiter.Check(context.Background(), "42", models.TierNone)
	require.NoError(t, err)
	assert.True(t, status.Exceeded())
}
