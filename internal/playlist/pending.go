package playlist

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/database"
	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/spotify"
)

// ListPending returns the moderation queue, oldest first
func (s *Service) ListPending(ctx context.Context, owner *models.Account) ([]*models.PendingSong, error) {
	if !owner.IsOwner {
		return nil, errOwnerOnly
	}

	songs, err := s.store.ListPendingSongs(ctx)
	if err != nil {
		s.logger.Error("failed to list pending songs", zap.Error(err))
		return nil, internalError(err)
	}
	return songs, nil
}

// Approve adds a queued track to the playlist on behalf of the subscriber
// who requested it
func (s *Service) Approve(ctx context.Context, owner *models.Account, ref string) (*models.PendingSong, error) {
	if !owner.IsOwner {
		return nil, errOwnerOnly
	}
	uri, err := spotify.ParseTrackRef(ref)
	if err != nil {
		return nil, errInvalidTrack
	}

	song, err := s.store.GetPendingSong(ctx, uri)
	if errors.Is(err, database.ErrPendingSongNotFound) {
		return nil, errNotPending
	}
	if err != nil {
		return nil, internalError(err)
	}

	if err := s.addDirect(ctx, uri, song.AddedByTwitchID); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.notifier.TrackAdded(trackEvent(&models.Track{
		ID:          song.SpotifyID,
		Name:        song.TrackName,
		Artists:     song.TrackArtists,
		Album:       song.TrackAlbum,
		ExternalURL: song.ExternalURL,
	}, song.AddedByDisplayName, owner.DisplayName))

	s.logger.Info("pending song approved",
		zap.String("track_uri", uri),
		zap.String("requested_by", song.AddedByTwitchID),
		zap.String("approved_by", owner.TwitchID),
	)
	return song, nil
}

// Disapprove drops a queued track
func (s *Service) Disapprove(ctx context.Context, owner *models.Account, ref string) error {
	if !owner.IsOwner {
		return errOwnerOnly
	}
	uri, err := spotify.ParseTrackRef(ref)
	if err != nil {
		return errInvalidTrack
	}

	err = s.store.DeletePendingSong(ctx, uri)
	if errors.Is(err, database.ErrPendingSongNotFound) {
		return errNotPending
	}
	if err != nil {
		return internalError(err)
	}

	s.logger.Info("pending song rejected",
		zap.String("track_uri", uri),
		zap.String("rejected_by", owner.TwitchID),
	)
	return nil
}
