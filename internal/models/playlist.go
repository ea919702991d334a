package models

import (
	"database/sql"
	"time"
)

// EntryStatus is the lifecycle state of a provenance row
type EntryStatus string

const (
	// EntryPending is written before the upstream add
	EntryPending EntryStatus = "pending"
	// EntryConfirmed is set once the upstream playlist accepted the track
	EntryConfirmed EntryStatus = "confirmed"
)

// PlaylistEntry records which account added a track
type PlaylistEntry struct {
	ID          int64        `json:"id"`
	TrackURI    string       `json:"track_uri"`
	TwitchID    string       `json:"twitch_id"`
	Status      EntryStatus  `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ConfirmedAt sql.NullTime `json:"-"`
}

// IsConfirmed reports whether the entry reflects an accepted upstream add
func (e *PlaylistEntry) IsConfirmed() bool {
	return e.Status == EntryConfirmed
}

// IsStalePending reports whether a pending entry outlived the grace window
func (e *PlaylistEntry) IsStalePending(grace time.Duration) bool {
	return e.Status == EntryPending && time.Since(e.CreatedAt) > grace
}

// PendingSong is a track waiting for owner approval
type PendingSong struct {
	ID                 int64     `json:"id"`
	SpotifyID          string    `json:"spotify_id"`
	TrackName          string    `json:"track_name"`
	TrackArtists       string    `json:"track_artists"`
	TrackAlbum         string    `json:"track_album"`
	ExternalURL        string    `json:"external_url"`
	AddedByTwitchID    string    `json:"added_by_twitch_id"`
	AddedByDisplayName string    `json:"added_by_display_name"`
	CreatedAt          time.Time `json:"created_at"`
}

// Image is a playlist cover image
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Track is a simplified playlist track
type Track struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artists     string `json:"artists"`
	DurationMS  int    `json:"duration_ms"`
	ExternalURL string `json:"external_url"`
	Album       string `json:"album"`
}

// Playlist is the cached playlist projection
type Playlist struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Images      []Image `json:"images"`
	Tracks      []Track `json:"tracks"`
}

// Contains reports whether the playlist holds the track URI
func (p *Playlist) Contains(uri string) bool {
	for _, t := range p.Tracks {
		if t.ID == uri {
			return true
		}
	}
	return false
}

// Adder identifies who added a track
type Adder struct {
	TwitchID    string `json:"twitchId"`
	DisplayName string `json:"displayName"`
}

// OwnershipRecord is one value of the ownership projection
type OwnershipRecord struct {
	AddedBy Adder `json:"addedBy"`
}

// Ownership maps a track URI to the account that added it
type Ownership map[string]OwnershipRecord
