// Package models defines the records shared by the store, the services and the HTTP layer.
package models

import (
	"database/sql"
	"time"
)

// Tier is a subscription level; higher tiers get a larger daily track-add quota
type Tier int

const (
	TierNone Tier = iota
	Tier1
	Tier2
	Tier3
)

// ParseTier maps a Twitch subscription tier ("1000", "2000", "3000") onto a Tier
func ParseTier(s string) Tier {
	switch s {
	case "1000":
		return Tier1
	case "2000":
		return Tier2
	case "3000":
		return Tier3
	default:
		return TierNone
	}
}

// String returns the Twitch representation of the tier
func (t Tier) String() string {
	switch t {
	case Tier1:
		return "1000"
	case Tier2:
		return "2000"
	case Tier3:
		return "3000"
	default:
		return ""
	}
}

// Account is a Twitch user known to the site
type Account struct {
	ID               int64          `json:"id"`
	TwitchID         string         `json:"twitch_id"`
	DisplayName      string         `json:"display_name"`
	SessionID        string         `json:"-"`
	IsSubscriber     bool           `json:"is_subscriber"`
	SubscriptionTier sql.NullString `json:"-"`
	IsGiftedSub      bool           `json:"is_gifted_sub"`
	IsOwner          bool           `json:"is_owner"`
	IsTrusted        bool           `json:"is_trusted"`
	IsBanned         bool           `json:"is_banned"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Tier resolves the quota tier. Owners get the top tier and subscribers
// with an unknown tier fall back to the lowest.
func (a *Account) Tier() Tier {
	if a.IsOwner {
		return Tier3
	}
	if !a.IsSubscriber {
		return TierNone
	}
	if t := ParseTier(a.SubscriptionTier.String); t != TierNone {
		return t
	}
	return Tier1
}

// CanModifyPlaylist reports whether the account may request playlist changes at all
func (a *Account) CanModifyPlaylist() bool {
	return !a.IsBanned && (a.IsSubscriber || a.IsOwner)
}

// AddsDirectly reports whether the account's adds skip the moderation queue
func (a *Account) AddsDirectly() bool {
	return a.IsOwner || a.IsTrusted
}

// AccountProfile is the identity data returned by Twitch at login
type AccountProfile struct {
	TwitchID    string
	DisplayName string
	SessionID   string
}

// Subscription is the broadcaster subscription state of an account
type Subscription struct {
	IsSubscriber bool
	Tier         Tier
	IsGift       bool
}
