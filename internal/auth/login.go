// Package auth signs viewers in with Twitch, resolves session ids to
// accounts and manages the single-use states of the broadcaster OAuth flow.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/fansite/internal/database"
	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/twitch"
)

// AccountStore is the persistence the login flow needs
type AccountStore interface {
	GetAccountBySession(ctx context.Context, sessionID string) (*models.Account, error)
	GetAccountByTwitchID(ctx context.Context, twitchID string) (*models.Account, error)
	UpsertAccount(ctx context.Context, profile *models.AccountProfile) (*models.Account, error)
	UpdateSubscription(ctx context.Context, twitchID string, sub models.Subscription) (*models.Account, error)
	SetOwner(ctx context.Context, twitchID string, owner bool) (*models.Account, error)
	EnsureApology(ctx context.Context, twitchID, username, sessionID string) (*models.Apology, error)
}

// TwitchAPI is the part of the Twitch client the login flow needs
type TwitchAPI interface {
	ExchangeCode(ctx context.Context, code, redirectURL string) (*oauth2.Token, error)
	GetUser(ctx context.Context, accessToken string) (*twitch.User, error)
	GetSubscription(ctx context.Context, broadcasterID, userID string) (*twitch.Subscription, error)
}

// LoginResult is the account and apology a login produced
type LoginResult struct {
	Account *models.Account
	Apology *models.Apology
}

// Service handles viewer login and session resolution
type Service struct {
	store         AccountStore
	twitch        TwitchAPI
	broadcasterID string
	logger        *zap.Logger
}

// NewService creates a login service
func NewService(store AccountStore, twitchAPI TwitchAPI, broadcasterID string, logger *zap.Logger) *Service {
	return &Service{
		store:         store,
		twitch:        twitchAPI,
		broadcasterID: broadcasterID,
		logger:        logger,
	}
}

// Login exchanges a Twitch authorization code for a new site session
func (s *Service) Login(ctx context.Context, code, redirectURL string) (*LoginResult, error) {
	if code == "" {
		return nil, errMissingCode
	}
	if redirectURL == "" {
		return nil, errMissingRedirect
	}

	// 1. Exchange code for token
	s.logger.Debug("exchanging code for token")
	token, err := s.twitch.ExchangeCode(ctx, code, redirectURL)
	if err != nil {
		s.logger.Error("failed to exchange code", zap.Error(err))
		return nil, newError(http.StatusInternalServerError, msgTokenFailed)
	}

	// 2. Fetch user info from Twitch
	user, err := s.twitch.GetUser(ctx, token.AccessToken)
	if err != nil {
		s.logger.Error("failed to fetch user info", zap.Error(err))
		return nil, newError(http.StatusInternalServerError, msgUserFailed)
	}

	s.logger.Info("fetched user info",
		zap.String("twitch_id", user.ID),
		zap.String("display_name", user.DisplayName),
	)

	// 3. Refuse banned accounts before issuing a session
	existing, err := s.store.GetAccountByTwitchID(ctx, user.ID)
	switch {
	case err == nil && existing.IsBanned:
		s.logger.Warn("banned account attempted login", zap.String("twitch_id", user.ID))
		return nil, errBanned
	case err != nil && !errors.Is(err, database.ErrAccountNotFound):
		s.logger.Error("failed to look up account", zap.String("twitch_id", user.ID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, msgConnectFailed)
	}

	// 4. Create or update the account with a fresh session
	account, err := s.store.UpsertAccount(ctx, &models.AccountProfile{
		TwitchID:    user.ID,
		DisplayName: user.DisplayName,
		SessionID:   uuid.NewString(),
	})
	if err != nil {
		s.logger.Error("failed to create/update account", zap.String("twitch_id", user.ID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, msgConnectFailed)
	}

	apology, err := s.store.EnsureApology(ctx, user.ID, user.DisplayName, account.SessionID)
	if err != nil {
		s.logger.Error("failed to create/update apology", zap.String("twitch_id", user.ID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, msgConnectFailed)
	}

	// 5. Roles: the broadcaster owns the site, everyone else is checked for a subscription
	if user.ID == s.broadcasterID {
		if updated, err := s.store.SetOwner(ctx, user.ID, true); err != nil {
			s.logger.Warn("failed to set owner flag", zap.String("twitch_id", user.ID), zap.Error(err))
		} else {
			account = updated
		}
	} else {
		account = s.refreshSubscription(ctx, account)
	}

	s.logger.Info("login completed successfully",
		zap.String("twitch_id", account.TwitchID),
		zap.Bool("is_subscriber", account.IsSubscriber),
		zap.Bool("is_owner", account.IsOwner),
	)

	return &LoginResult{Account: account, Apology: apology}, nil
}

// refreshSubscription updates the stored subscription state. Failures keep
// the previous state and never fail the login.
func (s *Service) refreshSubscription(ctx context.Context, account *models.Account) *models.Account {
	sub, err := s.twitch.GetSubscription(ctx, s.broadcasterID, account.TwitchID)
	if errors.Is(err, twitch.ErrBroadcasterUnavailable) {
		s.logger.Debug("broadcaster not authorized, skipping subscription check")
		return account
	}
	if err != nil {
		s.logger.Warn("failed to check subscription status", zap.String("twitch_id", account.TwitchID), zap.Error(err))
		return account
	}

	state := models.Subscription{}
	if sub != nil {
		state = models.Subscription{IsSubscriber: true, Tier: models.ParseTier(sub.Tier), IsGift: sub.IsGift}
	}

	updated, err := s.store.UpdateSubscription(ctx, account.TwitchID, state)
	if err != nil {
		s.logger.Warn("failed to persist subscription", zap.String("twitch_id", account.TwitchID), zap.Error(err))
		return account
	}
	return updated
}

// Authenticate resolves a session id to its account
func (s *Service) Authenticate(ctx context.Context, sessionID string) (*models.Account, error) {
	if sessionID == "" {
		return nil, errMissingSession
	}

	account, err := s.store.GetAccountBySession(ctx, sessionID)
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, errInvalidSession
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
