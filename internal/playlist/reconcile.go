package playlist

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/models"
)

// ReconcileResult counts how stale pending rows were resolved
type ReconcileResult struct {
	Confirmed int
	Removed   int
}

// Reconcile resolves provenance rows left pending past the grace window:
// rows whose track is on the live playlist are confirmed, the rest deleted.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	entries, err := s.store.ListStalePendingEntries(ctx, s.grace)
	if err != nil {
		return result, fmt.Errorf("failed to list stale entries: %w", err)
	}
	if len(entries) == 0 {
		return result, nil
	}

	// The live playlist, not the cached view, decides.
	live, err := s.upstream.GetPlaylist(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch playlist for reconciliation: %w", err)
	}

	for _, entry := range entries {
		if live.Contains(entry.TrackURI) {
			if err := s.store.ConfirmEntry(ctx, entry.ID); err != nil {
				s.logger.Error("failed to confirm stale entry", zap.Int64("entry_id", entry.ID), zap.Error(err))
				continue
			}
			result.Confirmed++
			continue
		}

		if err := s.store.DeleteEntry(ctx, entry.ID); err != nil {
			s.logger.Error("failed to delete stale entry", zap.Int64("entry_id", entry.ID), zap.Error(err))
			continue
		}
		result.Removed++
	}

	if result.Confirmed > 0 || result.Removed > 0 {
		if err := s.views.Invalidate(ctx, models.CacheTypeOwnership); err != nil {
			s.logger.Error("failed to invalidate ownership cache", zap.Error(err))
		}
	}

	s.logger.Info("reconciled pending playlist entries",
		zap.Int("stale", len(entries)),
		zap.Int("confirmed", result.Confirmed),
		zap.Int("removed", result.Removed),
	)
	return result, nil
}

// StartReconcileJob runs Reconcile every interval until ctx is cancelled
func (s *Service) StartReconcileJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Reconcile(ctx); err != nil {
					s.logger.Error("playlist reconciliation failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("started reconcile job", zap.Duration("interval", interval))
}
