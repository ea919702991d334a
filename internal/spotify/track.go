package spotify

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidTrack is returned for a reference that names no Spotify track
var ErrInvalidTrack = errors.New("invalid Spotify track reference")

const uriPrefix = "spotify:track:"

var trackIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

// ParseTrackRef normalizes a track reference into its canonical
// "spotify:track:<id>" URI. Accepted shapes are the URI itself, an
// open.spotify.com track link (optionally with an intl-xx segment and a query
// string) and a bare track id.
func ParseTrackRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	var id string
	switch {
	case strings.HasPrefix(ref, uriPrefix):
		id = strings.TrimPrefix(ref, uriPrefix)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil || u.Host != "open.spotify.com" {
			return "", ErrInvalidTrack
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) > 0 && strings.HasPrefix(segments[0], "intl-") {
			segments = segments[1:]
		}
		if len(segments) != 2 || segments[0] != "track" {
			return "", ErrInvalidTrack
		}
		id = segments[1]
	default:
		id = ref
	}

	if !trackIDPattern.MatchString(id) {
		return "", ErrInvalidTrack
	}
	return uriPrefix + id, nil
}

// TrackID returns the id part of a canonical track URI
func TrackID(uri string) string {
	return strings.TrimPrefix(uri, uriPrefix)
}
