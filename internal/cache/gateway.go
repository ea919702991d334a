package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/models"
)

const refreshTimeout = 30 * time.Second

// Loader fetches the authoritative value of a view
type Loader func(ctx context.Context) (interface{}, error)

// Purger evicts edge copies of the cached views
type Purger interface {
	Purge(ctx context.Context) error
}

// Gateway serves views from the store, refreshing stale snapshots in the background
type Gateway struct {
	store     *Store
	freshness time.Duration
	purger    Purger
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewGateway creates a read gateway. purger may be nil.
func NewGateway(store *Store, freshness time.Duration, purger Purger, logger *zap.Logger) *Gateway {
	return &Gateway{
		store:     store,
		freshness: freshness,
		purger:    purger,
		logger:    logger,
	}
}

// Read returns the view of type t and whether it came from the cache. A fresh
// snapshot is returned as is; a stale one is returned while a background
// refresh runs; a miss is loaded synchronously and stored.
func (g *Gateway) Read(ctx context.Context, t models.CacheType, load Loader) (json.RawMessage, bool, error) {
	snapshot, err := g.store.Get(ctx, t)
	switch {
	case err == nil:
		if snapshot.IsStale(g.freshness) {
			g.logger.Debug("cache stale, refreshing in background",
				zap.String("cache_type", string(t)),
				zap.Duration("age", snapshot.Age()),
			)
			g.refreshAsync(t, load)
		} else {
			g.logger.Debug("cache hit", zap.String("cache_type", string(t)))
		}
		return snapshot.Payload, true, nil
	case errors.Is(err, ErrMiss):
		g.logger.Debug("cache miss", zap.String("cache_type", string(t)))
	default:
		// Serve from the source when Redis is unavailable.
		g.logger.Warn("cache read failed", zap.String("cache_type", string(t)), zap.Error(err))
	}

	value, err := load(ctx)
	if err != nil {
		return nil, false, err
	}

	stored, err := g.store.Put(ctx, t, value)
	if err != nil {
		g.logger.Warn("cache write failed", zap.String("cache_type", string(t)), zap.Error(err))
		raw, merr := json.Marshal(value)
		if merr != nil {
			return nil, false, merr
		}
		return raw, false, nil
	}

	return stored.Payload, false, nil
}

func (g *Gateway) refreshAsync(t models.CacheType, load Loader) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		locked, err := g.store.TryLock(ctx, t, refreshTimeout)
		if err != nil {
			g.logger.Warn("background refresh lock failed", zap.String("cache_type", string(t)), zap.Error(err))
			return
		}
		if !locked {
			return
		}
		defer func() {
			if err := g.store.Unlock(ctx, t); err != nil {
				g.logger.Warn("failed to release refresh lock", zap.String("cache_type", string(t)), zap.Error(err))
			}
		}()

		value, err := load(ctx)
		if err != nil {
			g.logger.Error("background refresh failed", zap.String("cache_type", string(t)), zap.Error(err))
			return
		}

		if _, err := g.store.Put(ctx, t, value); err != nil {
			g.logger.Warn("background refresh write failed", zap.String("cache_type", string(t)), zap.Error(err))
			return
		}

		g.logger.Debug("background refresh complete", zap.String("cache_type", string(t)))
	}()
}

// Invalidate evicts the given views synchronously and purges edge copies in
// the background. Purge failures are logged and not retried.
func (g *Gateway) Invalidate(ctx context.Context, types ...models.CacheType) error {
	if err := g.store.Invalidate(ctx, types...); err != nil {
		return err
	}

	g.logger.Debug("invalidated cache", zap.Int("count", len(types)))

	if g.purger == nil {
		return nil
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		purgeCtx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		if err := g.purger.Purge(purgeCtx); err != nil {
			g.logger.Warn("edge cache purge failed", zap.Error(err))
		}
	}()

	return nil
}

// Store exposes the underlying snapshot store
func (g *Gateway) Store() *Store {
	return g.store
}

// Wait blocks until background refreshes and purges have finished
func (g *Gateway) Wait() {
	g.wg.Wait()
}
