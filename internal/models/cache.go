package models

import (
	"encoding/json"
	"time"
)

// CacheType represents the type of cached data
type CacheType string

const (
	CacheTypePlaylist     CacheType = "playlist"
	CacheTypeOwnership    CacheType = "ownership"
	CacheTypeTwitchStatus CacheType = "twitch_status"
)

// ClearableCacheTypes are the projections an owner can evict by hand
var ClearableCacheTypes = []CacheType{CacheTypePlaylist, CacheTypeOwnership}

// Snapshot is a cached projection with the time it was captured
type Snapshot struct {
	Payload    json.RawMessage `json:"payload"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Age returns how long ago the snapshot was captured
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.CapturedAt)
}

// IsStale reports whether the snapshot is past the freshness threshold
func (s *Snapshot) IsStale(threshold time.Duration) bool {
	return s.Age() > threshold
}
