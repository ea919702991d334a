// Package twitch provides Twitch OAuth and Helix API access: viewer login,
// broadcaster subscription checks, stream status and EventSub verification.
package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/credentials"
	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/ratelimit"
)

const (
	twitchAPIEndpoint = "https://api.twitch.tv/helix"
	twitchAuthURL     = "https://id.twitch.tv/oauth2/authorize"
	twitchTokenURL    = "https://id.twitch.tv/oauth2/token" //nolint:gosec // Not a hardcoded credential, just an API endpoint URL
)

// ErrBroadcasterUnavailable is returned when no broadcaster token has been authorized
var ErrBroadcasterUnavailable = errors.New("broadcaster authorization not available")

// User is a Twitch user from the Helix API
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Subscription is a user's subscription to the broadcaster
type Subscription struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
	IsGift bool   `json:"is_gift"`
}

// StreamStatus is the live state of a channel
type StreamStatus struct {
	Live        bool       `json:"live"`
	Title       *string    `json:"title"`
	ViewerCount *int       `json:"viewer_count"`
	StartedAt   *time.Time `json:"started_at"`
}

type helixResponse[T any] struct {
	Data []T `json:"data"`
}

type helixStream struct {
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

// TokenProvider supplies the broadcaster's access token
type TokenProvider interface {
	Token(ctx context.Context) (*models.UpstreamToken, error)
}

// Client handles Twitch OAuth and Helix operations
type Client struct {
	config      *oauth2.Config
	appConfig   *clientcredentials.Config
	appTokens   oauth2.TokenSource
	broadcaster TokenProvider
	httpClient  *http.Client
	baseURL     string // Helix base URL (configurable for testing)
	logger      *zap.Logger
}

// NewOAuthConfig returns the OAuth configuration shared by viewer login and
// broadcaster authorization
func NewOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		RedirectURL:  cfg.Twitch.AdminRedirectURI,
		Scopes:       cfg.Twitch.AdminScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   twitchAuthURL,
			TokenURL:  twitchTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// NewClient creates a Twitch client. broadcaster and limiter may be nil.
func NewClient(cfg *config.Config, broadcaster TokenProvider, limiter *ratelimit.RateLimiter, logger *zap.Logger) *Client {
	var transport http.RoundTripper = http.DefaultTransport
	if limiter != nil {
		transport = limiter.Transport("twitch", transport)
	}

	c := &Client{
		config: NewOAuthConfig(cfg),
		appConfig: &clientcredentials.Config{
			ClientID:     cfg.Twitch.ClientID,
			ClientSecret: cfg.Twitch.ClientSecret,
			TokenURL:     twitchTokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		broadcaster: broadcaster,
		httpClient:  &http.Client{Transport: transport, Timeout: 15 * time.Second},
		baseURL:     twitchAPIEndpoint,
		logger:      logger,
	}
	c.appTokens = c.appConfig.TokenSource(context.Background())
	return c
}

// SetBaseURL points the client at a test server serving both the Helix API
// and the OAuth token endpoint
func (c *Client) SetBaseURL(u string) {
	u = strings.TrimRight(u, "/")
	c.baseURL = u
	c.config.Endpoint.AuthURL = u + "/oauth2/authorize"
	c.config.Endpoint.TokenURL = u + "/oauth2/token"
	c.appConfig.TokenURL = u + "/oauth2/token"
	c.appTokens = c.appConfig.TokenSource(context.Background())
}

// OAuthConfig exposes the OAuth configuration, used to refresh the stored broadcaster token
func (c *Client) OAuthConfig() *oauth2.Config {
	return c.config
}

// SetBroadcasterTokens sets the provider of the broadcaster token
func (c *Client) SetBroadcasterTokens(p TokenProvider) {
	c.broadcaster = p
}

// GetAuthURL constructs the broadcaster authorization URL
func (c *Client) GetAuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.SetAuthURLParam("force_verify", "true"))
}

// ExchangeCode exchanges an authorization code for an access token. A
// non-empty redirectURL overrides the configured one; it must match the URL
// the code was issued for.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if redirectURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURL))
	}

	token, err := c.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	c.logger.Debug("successfully exchanged code for token",
		zap.String("token_type", token.TokenType),
		zap.Time("expiry", token.Expiry),
	)

	return token, nil
}

// GetUser fetches the user the access token belongs to
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var resp helixResponse[User]
	if err := c.get(ctx, "/users", accessToken, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return nil, fmt.Errorf("twitch returned no user for token")
	}

	user := resp.Data[0]
	c.logger.Debug("fetched user info from Twitch",
		zap.String("twitch_id", user.ID),
		zap.String("login", user.Login),
	)
	return &user, nil
}

// GetSubscription returns the user's subscription to the configured
// broadcaster, or nil when the user is not subscribed
func (c *Client) GetSubscription(ctx context.Context, broadcasterID, userID string) (*Subscription, error) {
	if c.broadcaster == nil || broadcasterID == "" {
		return nil, ErrBroadcasterUnavailable
	}

	token, err := c.broadcaster.Token(ctx)
	if errors.Is(err, credentials.ErrNotFound) {
		return nil, ErrBroadcasterUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcaster token: %w", err)
	}

	params := url.Values{}
	params.Set("broadcaster_id", broadcasterID)
	params.Set("user_id", userID)

	var resp helixResponse[Subscription]
	if err := c.get(ctx, "/subscriptions?"+params.Encode(), token.AccessToken, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

// GetStreamStatus reports whether the channel is live, using an app token
func (c *Client) GetStreamStatus(ctx context.Context, login string) (*StreamStatus, error) {
	token, err := c.appTokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get Twitch app token: %w", err)
	}

	params := url.Values{}
	params.Set("user_login", login)

	var resp helixResponse[helixStream]
	if err := c.get(ctx, "/streams?"+params.Encode(), token.AccessToken, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return &StreamStatus{Live: false}, nil
	}

	stream := resp.Data[0]
	return &StreamStatus{
		Live:        true,
		Title:       &stream.Title,
		ViewerCount: &stream.ViewerCount,
		StartedAt:   &stream.StartedAt,
	}, nil
}

// get makes a Helix GET request and decodes the JSON response
func (c *Client) get(ctx context.Context, endpoint, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Client-Id", c.config.ClientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("twitch API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
