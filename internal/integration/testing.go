// Package integration runs the full API against Postgres, Redis and mock
// Twitch, Spotify and Discord servers.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/bootstrap"
	"github.com/parsascontentcorner/fansite/internal/config"
	"github.com/parsascontentcorner/fansite/internal/database"
	"github.com/parsascontentcorner/fansite/internal/testutil"
)

// TestSuite is a running API server and its upstream mocks
type TestSuite struct {
	t *testing.T

	Config  *config.Config
	DB      *database.DB
	App     *bootstrap.App
	Server  *httptest.Server
	Client  *http.Client
	Twitch  *testutil.MockTwitchServer
	Spotify *testutil.MockSpotifyServer
	Discord *testutil.MockDiscordWebhook
}

// NewTestSuite starts the stack. It skips when no container runtime is available.
func NewTestSuite(t *testing.T) *TestSuite {
	t.Helper()

	db := testutil.RequireTestDB(t)
	_, rdb := testutil.NewRedis(t)

	ts := &TestSuite{
		t:       t,
		DB:      db,
		Twitch:  testutil.NewMockTwitchServer(),
		Spotify: testutil.NewMockSpotifyServer(),
		Discord: testutil.NewMockDiscordWebhook(),
	}
	t.Cleanup(ts.Twitch.Close)
	t.Cleanup(ts.Spotify.Close)
	t.Cleanup(ts.Discord.Close)

	ts.Config = testutil.GenerateTestConfig()
	ts.Config.Discord.WebhookURL = ts.Discord.URL()

	ts.App = bootstrap.New(ts.Config, db, rdb, zap.NewNop(), bootstrap.Options{
		TwitchBaseURL:  ts.Twitch.URL(),
		SpotifyBaseURL: ts.Spotify.URL(),
		SpotifyTokens:  testutil.StaticToken{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ts.App.Start(ctx))
	t.Cleanup(func() {
		ts.App.Close()
		cancel()
	})

	ts.Server = httptest.NewServer(ts.App.Router)
	t.Cleanup(ts.Server.Close)

	ts.Client = &http.Client{
		// Redirects are asserted, not followed.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return ts
}

// Do sends a request to the API and returns the status and body
func (ts *TestSuite) Do(method, path string, body interface{}) (int, []byte) {
	ts.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	require.NoError(ts.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client.Do(req)
	require.NoError(ts.t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp.StatusCode, raw
}

// DoJSON sends a request, requires the expected status and decodes the body into out
func (ts *TestSuite) DoJSON(method, path string, body interface{}, want int, out interface{}) {
	ts.t.Helper()

	status, raw := ts.Do(method, path, body)
	require.Equal(ts.t, want, status, string(raw))
	if out != nil {
		require.NoError(ts.t, json.Unmarshal(raw, out), string(raw))
	}
}

// Login signs a viewer in through the API and returns the session id
func (ts *TestSuite) Login(code, twitchID, name string) string {
	ts.t.Helper()
	ts.Twitch.AddViewer(code, twitchID, name)

	var resp struct {
		Data struct {
			SessionID string `json:"sessionId"`
		} `json:"data"`
	}
	ts.DoJSON(http.MethodPost, "/api/login", map[string]string{
		"code":        code,
		"redirectURL": "http://localhost:3000/callback",
	}, http.StatusOK, &resp)
	require.NotEmpty(ts.t, resp.Data.SessionID)
	return resp.Data.SessionID
}
