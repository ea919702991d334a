// Package playlist implements the shared Spotify playlist: subscriber adds
// under a daily quota, the owner moderation queue, removal by the original
// adder and the cached playlist and ownership views.
package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/cache"
	"github.com/parsascontentcorner/fansite/internal/database"
	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/notify"
	"github.com/parsascontentcorner/fansite/internal/quota"
	"github.com/parsascontentcorner/fansite/internal/spotify"
)

// Store is the provenance and moderation-queue persistence
type Store interface {
	ReserveEntry(ctx context.Context, trackURI, twitchID string) (*models.PlaylistEntry, error)
	ConfirmEntry(ctx context.Context, id int64) error
	DeleteEntry(ctx context.Context, id int64) error
	GetEntryByTrack(ctx context.Context, trackURI string) (*models.PlaylistEntry, error)
	GetOwnership(ctx context.Context) (models.Ownership, error)
	ListStalePendingEntries(ctx context.Context, grace time.Duration) ([]*models.PlaylistEntry, error)

	CreatePendingSong(ctx context.Context, song *models.PendingSong) error
	ListPendingSongs(ctx context.Context) ([]*models.PendingSong, error)
	GetPendingSong(ctx context.Context, spotifyID string) (*models.PendingSong, error)
	DeletePendingSong(ctx context.Context, spotifyID string) error
}

// Upstream is the Spotify playlist API
type Upstream interface {
	GetPlaylist(ctx context.Context) (*models.Playlist, error)
	GetTrack(ctx context.Context, uri string) (*models.Track, error)
	AddTrack(ctx context.Context, uri string) error
	RemoveTrack(ctx context.Context, uri string) error
}

// Quota counts adds per account per day
type Quota interface {
	Check(ctx context.Context, twitchID string, tier models.Tier) (quota.Status, error)
	Consume(ctx context.Context, twitchID string) (int, error)
}

// Views serves and invalidates the cached projections
type Views interface {
	Read(ctx context.Context, t models.CacheType, load cache.Loader) (json.RawMessage, bool, error)
	Invalidate(ctx context.Context, types ...models.CacheType) error
}

// Notifier announces tracks that landed on the playlist
type Notifier interface {
	TrackAdded(event notify.TrackAdded)
}

// AddResult is the outcome of a successful add request
type AddResult struct {
	Track     *models.Track
	Pending   bool
	Remaining int
}

// Service coordinates the playlist operations
type Service struct {
	store    Store
	upstream Upstream
	quota    Quota
	views    Views
	notifier Notifier
	grace    time.Duration
	logger   *zap.Logger
}

// NewService creates a playlist service. grace is how long a pending
// provenance row may wait for its upstream add before the sweep resolves it.
func NewService(store Store, upstream Upstream, q Quota, views Views, notifier Notifier, grace time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		upstream: upstream,
		quota:    q,
		views:    views,
		notifier: notifier,
		grace:    grace,
		logger:   logger,
	}
}

// Add requests a track for the playlist. Owners and trusted accounts add
// directly; other subscribers queue the track for approval. Either way the
// request counts against the daily quota.
func (s *Service) Add(ctx context.Context, account *models.Account, ref string) (*AddResult, error) {
	uri, err := spotify.ParseTrackRef(ref)
	if err != nil {
		return nil, errInvalidTrack
	}

	// 1. Authorize
	if !account.CanModifyPlaylist() {
		s.logger.Info("rejected add from account without entitlement",
			zap.String("twitch_id", account.TwitchID),
			zap.String("track_uri", uri),
		)
		return nil, errSubscriberOnly
	}

	// 2. Quota
	tier := account.Tier()
	status, err := s.quota.Check(ctx, account.TwitchID, tier)
	if err != nil {
		s.logger.Error("failed to read quota", zap.String("twitch_id", account.TwitchID), zap.Error(err))
		return nil, internalError(err)
	}
	if status.Exceeded() {
		s.logger.Info("daily quota reached",
			zap.String("twitch_id", account.TwitchID),
			zap.Int("used", status.Used),
			zap.Int("limit", status.Limit),
		)
		return nil, quotaError(status.Limit)
	}

	// 3. Resolve the track so the request and the notification carry its metadata
	track, err := s.upstream.GetTrack(ctx, uri)
	if err != nil {
		s.logger.Warn("failed to look up track", zap.String("track_uri", uri), zap.Error(err))
		return nil, upstreamError(err)
	}

	if existing, err := s.store.GetEntryByTrack(ctx, uri); err == nil {
		if existing.IsConfirmed() {
			return nil, errDuplicate
		}
	} else if !errors.Is(err, database.ErrEntryNotFound) {
		return nil, internalError(err)
	}

	result := &AddResult{Track: track}
	if account.AddsDirectly() {
		if err := s.addDirect(ctx, uri, account.TwitchID); err != nil {
			return nil, err
		}
	} else {
		if err := s.enqueue(ctx, track, account); err != nil {
			return nil, err
		}
		result.Pending = true
	}

	// 4. Count the add only once it went through
	used, err := s.quota.Consume(ctx, account.TwitchID)
	if err != nil {
		s.logger.Warn("failed to record quota usage", zap.String("twitch_id", account.TwitchID), zap.Error(err))
		used = status.Used + 1
	}
	result.Remaining = quota.Status{Used: used, Limit: status.Limit}.Remaining()

	if !result.Pending {
		s.invalidate(ctx)
		s.notifier.TrackAdded(trackEvent(track, account.DisplayName, ""))
	}

	s.logger.Info("track add accepted",
		zap.String("twitch_id", account.TwitchID),
		zap.String("track_uri", uri),
		zap.Bool("pending", result.Pending),
		zap.Int("remaining", result.Remaining),
	)
	return result, nil
}

// addDirect writes a pending provenance row, appends the track upstream and
// confirms the row, dropping any queued request for the track. A failed
// upstream write removes the row again.
func (s *Service) addDirect(ctx context.Context, uri, twitchID string) error {
	entry, err := s.store.ReserveEntry(ctx, uri, twitchID)
	if errors.Is(err, database.ErrDuplicateEntry) {
		return errDuplicate
	}
	if err != nil {
		s.logger.Error("failed to reserve playlist entry", zap.String("track_uri", uri), zap.Error(err))
		return internalError(err)
	}

	if err := s.upstream.AddTrack(ctx, uri); err != nil {
		s.logger.Warn("upstream add failed", zap.String("track_uri", uri), zap.Error(err))
		if delErr := s.store.DeleteEntry(ctx, entry.ID); delErr != nil {
			s.logger.Error("failed to release playlist entry",
				zap.Int64("entry_id", entry.ID),
				zap.Error(delErr),
			)
		}
		return upstreamError(err)
	}

	// The track is on the playlist now; an unconfirmed row is picked up by Reconcile.
	if err := s.store.ConfirmEntry(ctx, entry.ID); err != nil {
		s.logger.Error("failed to confirm playlist entry",
			zap.Int64("entry_id", entry.ID),
			zap.String("track_uri", uri),
			zap.Error(err),
		)
	}

	// A queued request for the same track is settled by this add.
	if err := s.store.DeletePendingSong(ctx, uri); err != nil && !errors.Is(err, database.ErrPendingSongNotFound) {
		s.logger.Error("failed to clear pending song", zap.String("track_uri", uri), zap.Error(err))
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, track *models.Track, account *models.Account) error {
	err := s.store.CreatePendingSong(ctx, &models.PendingSong{
		SpotifyID:          track.ID,
		TrackName:          track.Name,
		TrackArtists:       track.Artists,
		TrackAlbum:         track.Album,
		ExternalURL:        track.ExternalURL,
		AddedByTwitchID:    account.TwitchID,
		AddedByDisplayName: account.DisplayName,
	})
	if errors.Is(err, database.ErrDuplicateEntry) {
		return errAlreadyPending
	}
	if err != nil {
		s.logger.Error("failed to queue pending song", zap.String("track_uri", track.ID), zap.Error(err))
		return internalError(err)
	}
	return nil
}

// Remove takes a track off the playlist. Only the account that added it may.
func (s *Service) Remove(ctx context.Context, account *models.Account, ref string) error {
	uri, err := spotify.ParseTrackRef(ref)
	if err != nil {
		return errInvalidTrack
	}
	if !account.CanModifyPlaylist() {
		return errSubscriberOnly
	}

	entry, err := s.store.GetEntryByTrack(ctx, uri)
	if errors.Is(err, database.ErrEntryNotFound) {
		return errNotInPlaylist
	}
	if err != nil {
		return internalError(err)
	}
	if entry.TwitchID != account.TwitchID {
		s.logger.Info("rejected removal of another account's track",
			zap.String("twitch_id", account.TwitchID),
			zap.String("owner_twitch_id", entry.TwitchID),
			zap.String("track_uri", uri),
		)
		return errNotAdder
	}

	if err := s.upstream.RemoveTrack(ctx, uri); err != nil {
		s.logger.Warn("upstream remove failed", zap.String("track_uri", uri), zap.Error(err))
		return upstreamError(err)
	}

	if err := s.store.DeleteEntry(ctx, entry.ID); err != nil && !errors.Is(err, database.ErrEntryNotFound) {
		s.logger.Error("failed to delete playlist entry after upstream removal",
			zap.Int64("entry_id", entry.ID),
			zap.String("track_uri", uri),
			zap.Error(err),
		)
		s.invalidate(ctx)
		return internalError(err)
	}

	s.invalidate(ctx)
	s.logger.Info("track removed",
		zap.String("twitch_id", account.TwitchID),
		zap.String("track_uri", uri),
	)
	return nil
}

// Playlist returns the playlist view and whether it came from the cache
func (s *Service) Playlist(ctx context.Context) (json.RawMessage, bool, error) {
	payload, cached, err := s.views.Read(ctx, models.CacheTypePlaylist, func(ctx context.Context) (interface{}, error) {
		return s.upstream.GetPlaylist(ctx)
	})
	if err != nil {
		s.logger.Error("failed to fetch playlist", zap.Error(err))
		if errors.Is(err, spotify.ErrNotConfigured) {
			return nil, false, upstreamError(err)
		}
		return nil, false, fetchError("Failed to fetch playlist", err)
	}
	return payload, cached, nil
}

// Ownership returns the track-to-adder view and whether it came from the cache
func (s *Service) Ownership(ctx context.Context) (json.RawMessage, bool, error) {
	payload, cached, err := s.views.Read(ctx, models.CacheTypeOwnership, func(ctx context.Context) (interface{}, error) {
		return s.store.GetOwnership(ctx)
	})
	if err != nil {
		s.logger.Error("failed to fetch ownership", zap.Error(err))
		return nil, false, fetchError("Failed to fetch ownership", err)
	}
	return payload, cached, nil
}

// invalidate evicts both views. The next read repopulates them, so a failure
// here only costs freshness.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.views.Invalidate(ctx, models.CacheTypePlaylist, models.CacheTypeOwnership); err != nil {
		s.logger.Error("failed to invalidate playlist caches", zap.Error(err))
	}
}

func trackEvent(track *models.Track, addedBy, approvedBy string) notify.TrackAdded {
	return notify.TrackAdded{
		TrackURI:    track.ID,
		TrackName:   track.Name,
		Artists:     track.Artists,
		Album:       track.Album,
		ExternalURL: track.ExternalURL,
		AddedBy:     addedBy,
		ApprovedBy:  approvedBy,
	}
}
