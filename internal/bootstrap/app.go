// Package bootstrap wires the clients, stores and services behind the API.
package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/admin"
	"github.com/parsascontentcorner/fansite/internal/apology"
	"github.com/parsascontentcorner/fansite/internal/auth"
	"github.com/parsascontentcorner/fansite/internal/cache"
	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/credentials"
	apihttp "github.com/parsascontentcorner/fansite/internal/http"
	"github.com/parsascontentcorner/fansite/internal/notify"
	"github.com/parsascontentcorner/fansite/internal/oauth"
	"github.com/parsascontentcorner/fansite/internal/playlist"
	"github.com/parsascontentcorner/fansite/internal/quota"
	"github.com/parsascontentcorner/fansite/internal/ratelimit"
	"github.com/parsascontentcorner/fansite/internal/spotify"
	"github.com/parsascontentcorner/fansite/internal/twitch"
)

const twitchStatusTTL = 30 * time.Second

// Store is the relational persistence every service shares
type Store interface {
	auth.AccountStore
	auth.StateStore
	apology.Store
	playlist.Store
	admin.Store
}

// Options overrides upstream endpoints and credentials, mainly for tests
type Options struct {
	TwitchBaseURL  string
	SpotifyBaseURL string
	// SpotifyTokens replaces the refresher backed by the credential store
	SpotifyTokens spotify.TokenProvider
	// Purger evicts edge copies of the views; nil disables purging
	Purger cache.Purger
}

// App holds the wired application
type App struct {
	Router      http.Handler
	Handlers    *apihttp.Handlers
	Auth        *auth.Service
	Playlist    *playlist.Service
	Apologies   *apology.Service
	Admin       *admin.Service
	Gateway     *cache.Gateway
	Notifier    *notify.Notifier
	Credentials *credentials.Store
	Twitch      *twitch.Client
	Spotify     *spotify.Client

	logger *zap.Logger
}

// New builds the application on top of store and rdb
func New(cfg *config.Config, store Store, rdb *redis.Client, logger *zap.Logger, opts Options) *App {
	limiter := ratelimit.NewRateLimiter(logger, 0, 0)
	creds := credentials.NewStore(rdb, cfg.Security.TokenEncryptionKey, logger)

	twitchClient := twitch.NewClient(cfg, nil, limiter, logger)
	if opts.TwitchBaseURL != "" {
		twitchClient.SetBaseURL(opts.TwitchBaseURL)
	}
	twitchClient.SetBroadcasterTokens(
		credentials.NewRefresher(creds, credentials.KeyTwitchAdmin, twitchClient.OAuthConfig(), "", logger),
	)

	spotifyTokens := opts.SpotifyTokens
	if spotifyTokens == nil {
		spotifyTokens = credentials.NewRefresher(creds, credentials.KeySpotify, spotify.NewOAuthConfig(cfg), cfg.Spotify.RefreshToken, logger)
	}
	spotifyClient := spotify.NewClient(cfg, spotifyTokens, limiter, logger)
	if opts.SpotifyBaseURL != "" {
		spotifyClient.SetBaseURL(opts.SpotifyBaseURL)
	}

	snapshots := cache.NewStore(rdb, cfg.Cache.EntryTTL, logger)
	gateway := cache.NewGateway(snapshots, cfg.Cache.Freshness, opts.Purger, logger)
	notifier := notify.NewNotifier(cfg.Discord.WebhookURL, logger)

	authService := auth.NewService(store, twitchClient, cfg.Twitch.BroadcasterID, logger)
	playlistService := playlist.NewService(
		store,
		spotifyClient,
		quota.NewLimiter(rdb, cfg.Quota, logger),
		gateway,
		notifier,
		cfg.Security.PendingGrace,
		logger,
	)
	apologyService := apology.NewService(store, logger)
	adminService := admin.NewService(store, gateway, logger)

	broadcaster := oauth.NewHandlers(
		auth.NewStateManager(store, cfg.Security.StateExpiryMinutes),
		twitchClient,
		creds,
		authService,
		cfg.Twitch.AdminID,
		logger,
	)

	checks := map[string]apihttp.HealthChecker{
		"redis": apihttp.HealthFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	}
	if db, ok := store.(apihttp.HealthChecker); ok {
		checks["database"] = db
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Auth:             authService,
		Apologies:        apologyService,
		Playlist:         playlistService,
		Admin:            adminService,
		Broadcaster:      broadcaster,
		Streams:          twitchClient,
		BroadcasterLogin: cfg.Twitch.BroadcasterLogin,
		StatusCache:      snapshots,
		StatusTTL:        twitchStatusTTL,
		EventSub:         twitch.NewVerifier(cfg.Twitch.EventSubSecret, rdb, logger),
		Checks:           checks,
	}, logger)

	return &App{
		Router:      apihttp.NewRouter(handlers, cfg.Server, logger),
		Handlers:    handlers,
		Auth:        authService,
		Playlist:    playlistService,
		Apologies:   apologyService,
		Admin:       adminService,
		Gateway:     gateway,
		Notifier:    notifier,
		Credentials: creds,
		Twitch:      twitchClient,
		Spotify:     spotifyClient,
		logger:      logger,
	}
}

// Start runs the background notification consumer
func (a *App) Start(ctx context.Context) error {
	return a.Notifier.Start(ctx)
}

// Close drains queued notifications and waits for background cache work
func (a *App) Close() {
	a.Notifier.Flush()
	if err := a.Notifier.Close(); err != nil {
		a.logger.Warn("failed to close notifier", zap.Error(err))
	}
	a.Gateway.Wait()
}
