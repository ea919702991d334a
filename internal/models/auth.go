package models

import (
	"time"
)

// OAuthState represents a temporary OAuth state for CSRF protection
type OAuthState struct {
	State     string    `json:"state"`
	Purpose   string    `json:"purpose"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatePurposeBroadcaster marks states issued for the broadcaster authorization flow
const StatePurposeBroadcaster = "broadcaster"

// IsExpired checks if the OAuth state has expired
func (s *OAuthState) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// UpstreamToken is an OAuth credential the service holds for a third-party account
// (the broadcaster's Twitch token, the playlist owner's Spotify token).
type UpstreamToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        []string  `json:"scope"`
	Expiry       time.Time `json:"expiry"`
	ObtainedAt   time.Time `json:"obtained_at"`
	OwnerID      string    `json:"owner_id,omitempty"`
	OwnerName    string    `json:"owner_name,omitempty"`
}

// IsExpired checks if the access token has expired
func (t *UpstreamToken) IsExpired() bool {
	return !t.Expiry.IsZero() && time.Now().After(t.Expiry)
}

// NeedsRefresh reports whether the token expires within the buffer
func (t *UpstreamToken) NeedsRefresh(buffer time.Duration) bool {
	if t.AccessToken == "" {
		return true
	}
	return !t.Expiry.IsZero() && time.Now().Add(buffer).After(t.Expiry)
}
