package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"1000", Tier1},
		{"2000", Tier2},
		{"3000", Tier3},
		{"", TierNone},
		{"prime", TierNone},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTier(tt.in))
		})
	}
}

func TestTier_StringRoundTrip(t *testing.T) {
	for _, tier := range []Tier{Tier1, Tier2, Tier3} {
		assert.Equal(t, tier, ParseTier(tier.String()))
	}
	assert.Equal(t, "", TierNone.String())
}

func TestAccount_Tier(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		want    Tier
	}{
		{"non subscriber", Account{}, TierNone},
		{"tier 2 subscriber", Account{IsSubscriber: true, SubscriptionTier: sql.NullString{String: "2000", Valid: true}}, Tier2},
		{"subscriber with unknown tier", Account{IsSubscriber: true}, Tier1},
		{"owner without subscription", Account{IsOwner: true}, Tier3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.account.Tier())
		})
	}
}

func TestAccount_Permissions(t *testing.T) {
	sub := Account{IsSubscriber: true}
	assert.True(t, sub.CanModifyPlaylist())
	assert.False(t, sub.AddsDirectly())

	trusted := Account{IsSubscriber: true, IsTrusted: true}
	assert.True(t, trusted.AddsDirectly())

	owner := Account{IsOwner: true}
	assert.True(t, owner.CanModifyPlaylist())
	assert.True(t, owner.AddsDirectly())

	banned := Account{IsSubscriber: true, IsBanned: true}
	assert.False(t, banned.CanModifyPlaylist())

	assert.False(t, (&Account{}).CanModifyPlaylist())
}

func TestApology_HasContent(t *testing.T) {
	assert.False(t, (&Apology{}).HasContent())
	assert.False(t, (&Apology{Body: sql.NullString{String: "", Valid: true}}).HasContent())
	assert.True(t, (&Apology{Body: sql.NullString{String: "sorry", Valid: true}}).HasContent())
}

func TestPlaylistEntry_Status(t *testing.T) {
	confirmed := &PlaylistEntry{Status: EntryConfirmed, CreatedAt: time.Now().Add(-time.Hour)}
	assert.True(t, confirmed.IsConfirmed())
	assert.False(t, confirmed.IsStalePending(time.Minute))

	fresh := &PlaylistEntry{Status: EntryPending, CreatedAt: time.Now()}
	assert.False(t, fresh.IsStalePending(time.Minute))

	stale := &PlaylistEntry{Status: EntryPending, CreatedAt: time.Now().Add(-10 * time.Minute)}
	assert.True(t, stale.IsStalePending(time.Minute))
}

func TestPlaylist_Contains(t *testing.T) {
	p := &Playlist{Tracks: []Track{{ID: "spotify:track:a"}, {ID: "spotify:track:b"}}}
	assert.True(t, p.Contains("spotify:track:b"))
	assert.False(t, p.Contains("spotify:track:c"))
}
