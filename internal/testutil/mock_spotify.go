package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/parsascontentcorner/fansite/internal/models"
)

// SpotifyTrack is a catalog entry of the mock Spotify server
type SpotifyTrack struct {
	URI     string
	Name    string
	Artists []string
	Album   string
}

// MockSpotifyServer is an in-memory Spotify Web API serving one playlist.
// Tracks must be in the catalog to be added.
type MockSpotifyServer struct {
	Server *httptest.Server

	AddCalls    atomic.Int32
	RemoveCalls atomic.Int32
	ReadCalls   atomic.Int32

	// FailAdds makes every add return 500 until cleared
	FailAdds atomic.Bool

	mu       sync.Mutex
	catalog  map[string]SpotifyTrack
	playlist []string
	pageSize int
}

// NewMockSpotifyServer creates a mock Spotify server with TrackOne, TrackTwo
// and TrackThree in its catalog and an empty playlist
func NewMockSpotifyServer() *MockSpotifyServer {
	m := &MockSpotifyServer{
		catalog:  make(map[string]SpotifyTrack),
		pageSize: 50,
	}
	m.AddToCatalog(SpotifyTrack{URI: TrackOne, Name: "Mr. Brightside", Artists: []string{"The Killers"}, Album: "Hot Fuss"})
	m.AddToCatalog(SpotifyTrack{URI: TrackTwo, Name: "Under Pressure", Artists: []string{"Queen", "David Bowie"}, Album: "Hot Space"})
	m.AddToCatalog(SpotifyTrack{URI: TrackThree, Name: "Bohemian Rhapsody", Artists: []string{"Queen"}, Album: "A Night at the Opera"})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /playlists/{id}", m.handlePlaylist)
	mux.HandleFunc("GET /playlists/{id}/tracks", m.handleTracksPage)
	mux.HandleFunc("POST /playlists/{id}/tracks", m.handleAdd)
	mux.HandleFunc("DELETE /playlists/{id}/tracks", m.handleRemove)
	mux.HandleFunc("GET /tracks/{id}", m.handleTrack)

	m.Server = httptest.NewServer(mux)
	return m
}

// URL returns the API base URL
func (m *MockSpotifyServer) URL() string {
	return m.Server.URL
}

// Close closes the mock server.
func (m *MockSpotifyServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// AddToCatalog makes a track known to the server
func (m *MockSpotifyServer) AddToCatalog(track SpotifyTrack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[track.URI] = track
}

// SetPageSize changes how many items one tracks page carries
func (m *MockSpotifyServer) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// SetPlaylist replaces the playlist contents
func (m *MockSpotifyServer) SetPlaylist(uris ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlist = append([]string(nil), uris...)
}

// Playlist returns the URIs currently on the playlist
func (m *MockSpotifyServer) Playlist() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.playlist...)
}

// StaticToken is a token provider for clients of the mock server
type StaticToken struct{}

// Token returns a fixed access token
func (StaticToken) Token(_ context.Context) (*models.UpstreamToken, error) {
	return &models.UpstreamToken{AccessToken: "spotify_test_token", TokenType: "Bearer"}, nil
}

func (m *MockSpotifyServer) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	m.ReadCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	writeMockJSON(w, http.StatusOK, map[string]interface{}{
		"id":          r.PathValue("id"),
		"name":        "Community Playlist",
		"description": "Songs picked by chat &amp; friends",
		"images":      []map[string]interface{}{{"url": "https://i.scdn.co/image/cover", "height": 640, "width": 640}},
		"tracks":      m.pageLocked(0),
	})
}

func (m *MockSpotifyServer) handleTracksPage(w http.ResponseWriter, r *http.Request) {
	m.ReadCalls.Add(1)
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	m.mu.Lock()
	defer m.mu.Unlock()
	writeMockJSON(w, http.StatusOK, m.pageLocked(offset))
}

func (m *MockSpotifyServer) pageLocked(offset int) map[string]interface{} {
	end := offset + m.pageSize
	if end > len(m.playlist) {
		end = len(m.playlist)
	}
	if offset > end {
		offset = end
	}

	items := make([]map[string]interface{}, 0, end-offset)
	for _, uri := range m.playlist[offset:end] {
		items = append(items, map[string]interface{}{"track": m.trackJSONLocked(uri)})
	}

	var next interface{}
	if end < len(m.playlist) {
		next = m.Server.URL + "/next?offset=" + strconv.Itoa(end)
	}

	return map[string]interface{}{
		"items":  items,
		"next":   next,
		"offset": offset,
		"limit":  m.pageSize,
		"total":  len(m.playlist),
	}
}

func (m *MockSpotifyServer) trackJSONLocked(uri string) map[string]interface{} {
	track := m.catalog[uri]
	artists := make([]map[string]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		artists = append(artists, map[string]string{"name": a})
	}
	id := strings.TrimPrefix(uri, "spotify:track:")
	return map[string]interface{}{
		"id":            id,
		"uri":           uri,
		"name":          track.Name,
		"duration_ms":   200000,
		"artists":       artists,
		"external_urls": map[string]string{"spotify": "https://open.spotify.com/track/" + id},
		"album":         map[string]string{"name": track.Album},
	}
}

func (m *MockSpotifyServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	m.ReadCalls.Add(1)
	uri := "spotify:track:" + r.PathValue("id")

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.catalog[uri]; !ok {
		writeSpotifyError(w, http.StatusBadRequest, "invalid base62 id")
		return
	}
	writeMockJSON(w, http.StatusOK, m.trackJSONLocked(uri))
}

func (m *MockSpotifyServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	m.AddCalls.Add(1)
	if m.FailAdds.Load() {
		writeSpotifyError(w, http.StatusInternalServerError, "Server error")
		return
	}

	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.URIs) == 0 {
		writeSpotifyError(w, http.StatusBadRequest, "Error parsing JSON.")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, uri := range body.URIs {
		if _, ok := m.catalog[uri]; !ok {
			writeSpotifyError(w, http.StatusBadRequest, "Payload contains a non-existing ID")
			return
		}
	}
	m.playlist = append(m.playlist, body.URIs...)
	writeMockJSON(w, http.StatusCreated, map[string]string{"snapshot_id": strconv.Itoa(len(m.playlist))})
}

func (m *MockSpotifyServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	m.RemoveCalls.Add(1)

	var body struct {
		Tracks []struct {
			URI string `json:"uri"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeSpotifyError(w, http.StatusBadRequest, "Error parsing JSON.")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range body.Tracks {
		kept := m.playlist[:0]
		for _, uri := range m.playlist {
			if uri != t.URI {
				kept = append(kept, uri)
			}
		}
		m.playlist = kept
	}
	writeMockJSON(w, http.StatusOK, map[string]string{"snapshot_id": strconv.Itoa(len(m.playlist))})
}

func writeSpotifyError(w http.ResponseWriter, status int, message string) {
	writeMockJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{"status": status, "message": message},
	})
}
