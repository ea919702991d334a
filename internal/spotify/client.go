// Package spotify is a client for the parts of the Spotify Web API the shared
// playlist needs. It acts as the playlist owner through a stored refresh token.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/credentials"
	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/ratelimit"
)

const (
	spotifyAPIEndpoint = "https://api.spotify.com/v1"
	spotifyAuthURL     = "https://accounts.spotify.com/authorize"
	spotifyTokenURL    = "https://accounts.spotify.com/api/token" //nolint:gosec // Not a hardcoded credential, just an API endpoint URL

	pageLimit = 50
)

// TokenProvider supplies a valid playlist owner access token
type TokenProvider interface {
	Token(ctx context.Context) (*models.UpstreamToken, error)
}

// Client performs playlist reads and writes
type Client struct {
	httpClient *http.Client
	baseURL    string
	playlistID string
	tokens     TokenProvider
	logger     *zap.Logger
}

// NewOAuthConfig returns the OAuth configuration used to refresh the owner token
func NewOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}

// NewClient creates a Spotify client. limiter may be nil.
func NewClient(cfg *config.Config, tokens TokenProvider, limiter *ratelimit.RateLimiter, logger *zap.Logger) *Client {
	var transport http.RoundTripper = http.DefaultTransport
	if limiter != nil {
		transport = limiter.Transport("spotify", transport)
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: 15 * time.Second},
		baseURL:    spotifyAPIEndpoint,
		playlistID: cfg.Spotify.PlaylistID,
		tokens:     tokens,
		logger:     logger,
	}
}

// SetBaseURL sets the base URL for the Spotify API (used for testing)
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// PlaylistID returns the id of the shared playlist
func (c *Client) PlaylistID() string {
	return c.playlistID
}

// GetPlaylist fetches the shared playlist with every track, page by page
func (c *Client) GetPlaylist(ctx context.Context) (*models.Playlist, error) {
	var playlist apiPlaylist
	if err := c.do(ctx, http.MethodGet, "/playlists/"+c.playlistID, nil, &playlist); err != nil {
		return nil, err
	}

	items := append([]apiPlaylistItem(nil), playlist.Tracks.Items...)
	offset := playlist.Tracks.Offset + len(playlist.Tracks.Items)
	next := playlist.Tracks.Next

	for next != nil && len(playlist.Tracks.Items) > 0 {
		params := url.Values{}
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(pageLimit))

		var page apiTrackPage
		endpoint := "/playlists/" + c.playlistID + "/tracks?" + params.Encode()
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}

		items = append(items, page.Items...)
		offset += len(page.Items)
		next = page.Next
	}

	result := playlist.toModel(items)
	c.logger.Debug("fetched playlist from Spotify",
		zap.String("playlist_id", c.playlistID),
		zap.Int("track_count", len(result.Tracks)),
	)
	return result, nil
}

// GetTrack fetches one track by its canonical URI
func (c *Client) GetTrack(ctx context.Context, uri string) (*models.Track, error) {
	var track apiTrack
	if err := c.do(ctx, http.MethodGet, "/tracks/"+TrackID(uri), nil, &track); err != nil {
		return nil, err
	}
	model := track.toModel()
	return &model, nil
}

// AddTrack appends a track to the shared playlist
func (c *Client) AddTrack(ctx context.Context, uri string) error {
	body := addTracksRequest{URIs: []string{uri}}
	if err := c.do(ctx, http.MethodPost, "/playlists/"+c.playlistID+"/tracks", body, nil); err != nil {
		return err
	}

	c.logger.Info("added track to playlist",
		zap.String("playlist_id", c.playlistID),
		zap.String("track_uri", uri),
	)
	return nil
}

// RemoveTrack removes every occurrence of a track from the shared playlist
func (c *Client) RemoveTrack(ctx context.Context, uri string) error {
	body := removeTracksRequest{Tracks: []trackURI{{URI: uri}}}
	if err := c.do(ctx, http.MethodDelete, "/playlists/"+c.playlistID+"/tracks", body, nil); err != nil {
		return err
	}

	c.logger.Info("removed track from playlist",
		zap.String("playlist_id", c.playlistID),
		zap.String("track_uri", uri),
	)
	return nil
}

// do sends an authorized request and decodes a successful JSON response into out
func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if errors.Is(err, credentials.ErrNotFound) {
		return ErrNotConfigured
	}
	if err != nil {
		return fmt.Errorf("failed to get Spotify token: %w", err)
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(raw))
	var parsed apiError
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	apiErr := &Error{
		Kind:    classify(resp.StatusCode, message),
		Status:  resp.StatusCode,
		Message: message,
	}

	c.logger.Warn("spotify API request failed",
		zap.String("url", resp.Request.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.String("kind", apiErr.Kind.String()),
		zap.String("message", message),
	)
	return apiErr
}
