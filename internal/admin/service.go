// Package admin holds the owner-only moderation operations: banning,
// trusting and manual cache eviction.
package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/database"
	"github.com/parsascontentcorner/fansite/internal/models"
)

// Error is a moderation failure carrying the HTTP status it maps to
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status of the failure
func (e *Error) StatusCode() int {
	return e.Status
}

var (
	errOwnerOnly     = &Error{Status: http.StatusForbidden, Message: "Owner-only"}
	errMissingTarget = &Error{Status: http.StatusBadRequest, Message: "Missing twitchId parameter"}
	errInvalidAction = &Error{Status: http.StatusBadRequest, Message: "Invalid action. Must be 'ban' or 'unban'"}
	errInvalidCache  = &Error{Status: http.StatusBadRequest, Message: "Invalid cacheType. Must be 'playlist', 'ownership', or 'all'"}
	errSelfBan       = &Error{Status: http.StatusBadRequest, Message: "Cannot ban the channel owner"}
	errUserNotFound  = &Error{Status: http.StatusNotFound, Message: "User not found"}
	errInternal      = &Error{Status: http.StatusInternalServerError, Message: "Internal server error"}
)

// Ban actions
const (
	ActionBan   = "ban"
	ActionUnban = "unban"
)

// CacheAll selects every clearable view
const CacheAll = "all"

// Store is the account persistence moderation needs
type Store interface {
	GetAccountByTwitchID(ctx context.Context, twitchID string) (*models.Account, error)
	SetTrusted(ctx context.Context, twitchID string, trusted bool) (*models.Account, error)
	SetBanned(ctx context.Context, twitchID string, banned bool, rotatedSession string) (*models.Account, error)
}

// Views evicts cached projections
type Views interface {
	Invalidate(ctx context.Context, types ...models.CacheType) error
}

// Service performs moderation on behalf of the channel owner
type Service struct {
	store  Store
	views  Views
	logger *zap.Logger
}

// NewService creates a moderation service
func NewService(store Store, views Views, logger *zap.Logger) *Service {
	return &Service{store: store, views: views, logger: logger}
}

// Ban bans or unbans an account. A ban replaces the target's session so it
// is signed out everywhere at once.
func (s *Service) Ban(ctx context.Context, owner *models.Account, twitchID, action string) (*models.Account, error) {
	if !owner.IsOwner {
		return nil, errOwnerOnly
	}
	if twitchID == "" {
		return nil, errMissingTarget
	}
	if action != ActionBan && action != ActionUnban {
		return nil, errInvalidAction
	}
	banned := action == ActionBan
	if banned && twitchID == owner.TwitchID {
		return nil, errSelfBan
	}

	account, err := s.store.SetBanned(ctx, twitchID, banned, uuid.NewString())
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		s.logger.Error("failed to update banned flag", zap.String("target_twitch_id", twitchID), zap.Error(err))
		return nil, errInternal
	}

	s.logger.Info("account ban updated",
		zap.String("target_twitch_id", twitchID),
		zap.Bool("banned", banned),
		zap.String("by", owner.TwitchID),
	)
	return account, nil
}

// SetTrusted sets whether an account's adds skip the moderation queue
func (s *Service) SetTrusted(ctx context.Context, owner *models.Account, twitchID string, trusted bool) (*models.Account, error) {
	if !owner.IsOwner {
		return nil, errOwnerOnly
	}
	if twitchID == "" {
		return nil, errMissingTarget
	}

	account, err := s.store.SetTrusted(ctx, twitchID, trusted)
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		s.logger.Error("failed to update trusted flag", zap.String("target_twitch_id", twitchID), zap.Error(err))
		return nil, errInternal
	}

	s.logger.Info("account trust updated",
		zap.String("target_twitch_id", twitchID),
		zap.Bool("trusted", trusted),
		zap.String("by", owner.TwitchID),
	)
	return account, nil
}

// ClearCache evicts the playlist view, the ownership view or both
func (s *Service) ClearCache(ctx context.Context, owner *models.Account, cacheType string) ([]models.CacheType, error) {
	if !owner.IsOwner {
		return nil, errOwnerOnly
	}

	var types []models.CacheType
	for _, t := range models.ClearableCacheTypes {
		if cacheType == CacheAll || cacheType == string(t) {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return nil, errInvalidCache
	}

	if err := s.views.Invalidate(ctx, types...); err != nil {
		s.logger.Error("failed to clear cache", zap.String("cache_type", cacheType), zap.Error(err))
		return nil, errInternal
	}

	s.logger.Info("cache cleared", zap.String("cache_type", cacheType), zap.String("by", owner.TwitchID))
	return types, nil
}
