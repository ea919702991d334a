package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// DiscordEmbed is the subset of an embed the mock webhook records
type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Color       int    `json:"color"`
	Fields      []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"fields"`
}

// MockDiscordWebhook records the messages posted to a Discord webhook
type MockDiscordWebhook struct {
	Server *httptest.Server
	Calls  atomic.Int32

	// Status is returned to every post; 0 means 204
	Status atomic.Int32

	mu       sync.Mutex
	messages []DiscordEmbed
}

// NewMockDiscordWebhook creates a new mock webhook.
func NewMockDiscordWebhook() *MockDiscordWebhook {
	m := &MockDiscordWebhook{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Calls.Add(1)

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if status := int(m.Status.Load()); status != 0 {
			w.WriteHeader(status)
			return
		}

		var payload struct {
			Embeds []DiscordEmbed `json:"embeds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		m.messages = append(m.messages, payload.Embeds...)
		m.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	return m
}

// URL returns the webhook URL
func (m *MockDiscordWebhook) URL() string {
	return m.Server.URL
}

// Messages returns the embeds received so far
func (m *MockDiscordWebhook) Messages() []DiscordEmbed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DiscordEmbed(nil), m.messages...)
}

// Close closes the mock server.
func (m *MockDiscordWebhook) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}
