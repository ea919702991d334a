package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/credentials"
	"github.com/parsascontentcorner/fansite/internal/models"
)

type staticTokens struct {
	token *models.UpstreamToken
	err   error
}

func (s staticTokens) Token(context.Context) (*models.UpstreamToken, error) {
	return s.token, s.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{Spotify: config.SpotifyConfig{PlaylistID: "pl1"}}
	client := NewClient(cfg, staticTokens{token: &models.UpstreamToken{AccessToken: "owner-token"}}, nil, zap.NewNop())
	client.SetBaseURL(server.URL)
	return client
}

func trackJSON(i int) map[string]interface{} {
	return map[string]interface{}{
		"id":          fmt.Sprintf("id%d", i),
		"uri":         fmt.Sprintf("spotify:track:%022d", i),
		"name":        fmt.Sprintf("Song %d", i),
		"duration_ms": 1000 * i,
		"artists":     []map[string]string{{"name": "A"}, {"name": "B"}},
		"external_urls": map[string]string{
			"spotify": fmt.Sprintf("https://open.spotify.com/track/%022d", i),
		},
		"album": map[string]string{"name": "Album"},
	}
}

func TestGetPlaylist_Paginates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer owner-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/playlists/pl1":
			next := "more"
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":          "pl1",
				"name":        "Community",
				"description": "Half these songs aren&#x27;t mine &amp; that&#39;s fine",
				"images":      []map[string]interface{}{{"url": "https://i.scdn.co/x", "height": 640, "width": nil}},
				"tracks": map[string]interface{}{
					"items":  []map[string]interface{}{{"track": trackJSON(1)}, {"track": nil}},
					"next":   next,
					"limit":  2,
					"offset": 0,
					"total":  3,
				},
			})
		case "/playlists/pl1/tracks":
			assert.Equal(t, "2", r.URL.Query().Get("offset"))
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"items":  []map[string]interface{}{{"track": trackJSON(2)}},
				"next":   nil,
				"limit":  50,
				"offset": 2,
				"total":  3,
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	playlist, err := client.GetPlaylist(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Community", playlist.Name)
	assert.Equal(t, "Half these songs aren't mine & that's fine", playlist.Description)
	require.Len(t, playlist.Images, 1)
	assert.Equal(t, 640, playlist.Images[0].Height)
	assert.Equal(t, 0, playlist.Images[0].Width)

	require.Len(t, playlist.Tracks, 2)
	assert.Equal(t, fmt.Sprintf("spotify:track:%022d", 1), playlist.Tracks[0].ID)
	assert.Equal(t, "A, B", playlist.Tracks[0].Artists)
	assert.Equal(t, "Album", playlist.Tracks[1].Album)
	assert.True(t, playlist.Contains(fmt.Sprintf("spotify:track:%022d", 2)))
}

func TestAddTrack_Body(t *testing.T) {
	var got addTracksRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/playlists/pl1/tracks", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"snapshot_id":"abc"}`))
	})

	require.NoError(t, client.AddTrack(context.Background(), "spotify:track:4uLU6hMCjMI75M1A2tKUQC"))
	assert.Equal(t, []string{"spotify:track:4uLU6hMCjMI75M1A2tKUQC"}, got.URIs)
}

func TestRemoveTrack_Body(t *testing.T) {
	var got removeTracksRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"snapshot_id":"abc"}`))
	})

	require.NoError(t, client.RemoveTrack(context.Background(), "spotify:track:4uLU6hMCjMI75M1A2tKUQC"))
	require.Len(t, got.Tracks, 1)
	assert.Equal(t, "spotify:track:4uLU6hMCjMI75M1A2tKUQC", got.Tracks[0].URI)
}

func TestGetTrack(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracks/4uLU6hMCjMI75M1A2tKUQC", r.URL.Path)
		track := trackJSON(7)
		track["uri"] = "spotify:track:4uLU6hMCjMI75M1A2tKUQC"
		_ = json.NewEncoder(w).Encode(track)
	})

	track, err := client.GetTrack(context.Background(), "spotify:track:4uLU6hMCjMI75M1A2tKUQC")
	require.NoError(t, err)
	assert.Equal(t, "Song 7", track.Name)
	assert.Equal(t, "A, B", track.Artists)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		kind    Kind
	}{
		{"not found", http.StatusNotFound, "Resource not found", KindNotFound},
		{"invalid id", http.StatusBadRequest, "Invalid base62 id", KindNotFound},
		{"duplicate", http.StatusBadRequest, "Duplicate track in playlist", KindDuplicate},
		{"unauthorized", http.StatusUnauthorized, "The access token expired", KindUnauthorized},
		{"forbidden", http.StatusForbidden, "Insufficient client scope", KindUnauthorized},
		{"rate limited", http.StatusTooManyRequests, "API rate limit exceeded", KindRateLimited},
		{"server error", http.StatusBadGateway, "Bad gateway", KindUpstream},
		{"other bad request", http.StatusBadRequest, "Something else", KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{"status": tt.status, "message": tt.message},
				})
			})

			err := client.AddTrack(context.Background(), "spotify:track:4uLU6hMCjMI75M1A2tKUQC")
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestNotConfigured(t *testing.T) {
	cfg := &config.Config{Spotify: config.SpotifyConfig{PlaylistID: "pl1"}}
	client := NewClient(cfg, staticTokens{err: credentials.ErrNotFound}, nil, zap.NewNop())

	err := client.AddTrack(context.Background(), "spotify:track:4uLU6hMCjMI75M1A2tKUQC")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
