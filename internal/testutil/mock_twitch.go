package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// IDs used by the mock servers
const (
	BroadcasterID = "100000001"
	PlaylistID    = "5ydVffCAhJeKwVdnQWIm5E"
)

// TwitchTokenResponse represents the OAuth token response from Twitch.
type TwitchTokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	Scope        []string `json:"scope,omitempty"`
}

// TwitchUser is a user the mock server knows
type TwitchUser struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// TwitchSubscription is a subscription the mock server reports
type TwitchSubscription struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
	IsGift bool   `json:"is_gift"`
}

// TwitchStream is the live stream the mock server reports
type TwitchStream struct {
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

// MockTwitchServer represents a mock Twitch OAuth and Helix server for testing.
// Codes registered with AddViewer exchange for a token that resolves to the user.
type MockTwitchServer struct {
	Server *httptest.Server

	TokenCalls        atomic.Int32
	UserInfoCalls     atomic.Int32
	SubscriptionCalls atomic.Int32
	StreamCalls       atomic.Int32

	mu     sync.Mutex
	codes  map[string]string
	users  map[string]TwitchUser
	subs   map[string]TwitchSubscription
	stream *TwitchStream
}

// NewMockTwitchServer creates a new mock Twitch server.
func NewMockTwitchServer() *MockTwitchServer {
	m := &MockTwitchServer{
		codes: make(map[string]string),
		users: make(map[string]TwitchUser),
		subs:  make(map[string]TwitchSubscription),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", m.handleToken)
	mux.HandleFunc("/users", m.handleUsers)
	mux.HandleFunc("/subscriptions", m.handleSubscriptions)
	mux.HandleFunc("/streams", m.handleStreams)

	m.Server = httptest.NewServer(mux)
	return m
}

// URL returns the base URL serving both OAuth and Helix endpoints
func (m *MockTwitchServer) URL() string {
	return m.Server.URL
}

// Close closes the mock server.
func (m *MockTwitchServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// AddViewer registers a user that code logs in as
func (m *MockTwitchServer) AddViewer(code, twitchID, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code] = "token_" + twitchID
	m.users["token_"+twitchID] = TwitchUser{ID: twitchID, Login: strings.ToLower(displayName), DisplayName: displayName}
}

// SetSubscription marks twitchID as subscribed at tier ("1000", "2000", "3000")
func (m *MockTwitchServer) SetSubscription(twitchID, tier string, gift bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[twitchID] = TwitchSubscription{UserID: twitchID, Tier: tier, IsGift: gift}
}

// SetLive sets the stream reported by /streams; nil means offline
func (m *MockTwitchServer) SetLive(stream *TwitchStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream = stream
}

func (m *MockTwitchServer) handleToken(w http.ResponseWriter, r *http.Request) {
	m.TokenCalls.Add(1)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.FormValue("grant_type") {
	case "client_credentials":
		writeMockJSON(w, http.StatusOK, TwitchTokenResponse{AccessToken: "app_token", TokenType: "bearer", ExpiresIn: 3600})
	case "refresh_token":
		writeMockJSON(w, http.StatusOK, TwitchTokenResponse{
			AccessToken:  "refreshed_token",
			TokenType:    "bearer",
			ExpiresIn:    14400,
			RefreshToken: "rotated_refresh_token",
		})
	case "authorization_code":
		m.mu.Lock()
		token, ok := m.codes[r.FormValue("code")]
		m.mu.Unlock()
		if !ok {
			writeMockJSON(w, http.StatusBadRequest, map[string]interface{}{"status": 400, "message": "Invalid authorization code"})
			return
		}
		writeMockJSON(w, http.StatusOK, TwitchTokenResponse{
			AccessToken:  token,
			TokenType:    "bearer",
			ExpiresIn:    14400,
			RefreshToken: "refresh_" + token,
			Scope:        []string{"channel:read:subscriptions"},
		})
	default:
		writeMockJSON(w, http.StatusBadRequest, map[string]interface{}{"status": 400, "message": "unsupported grant type"})
	}
}

func (m *MockTwitchServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	m.UserInfoCalls.Add(1)

	m.mu.Lock()
	user, ok := m.users[bearer(r)]
	m.mu.Unlock()
	if !ok {
		writeMockJSON(w, http.StatusUnauthorized, map[string]interface{}{"status": 401, "message": "Invalid OAuth token"})
		return
	}
	writeMockJSON(w, http.StatusOK, map[string]interface{}{"data": []TwitchUser{user}})
}

func (m *MockTwitchServer) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	m.SubscriptionCalls.Add(1)

	if bearer(r) == "" {
		writeMockJSON(w, http.StatusUnauthorized, map[string]interface{}{"status": 401, "message": "Missing token"})
		return
	}

	m.mu.Lock()
	sub, ok := m.subs[r.URL.Query().Get("user_id")]
	m.mu.Unlock()

	data := []TwitchSubscription{}
	if ok {
		data = append(data, sub)
	}
	writeMockJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

func (m *MockTwitchServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	m.StreamCalls.Add(1)

	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()

	data := []TwitchStream{}
	if stream != nil {
		data = append(data, *stream)
	}
	writeMockJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeMockJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
