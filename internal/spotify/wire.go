package spotify

import (
	"html"
	"strings"

	"github.com/parsascontentcorner/fansite/internal/models"
)

type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiImage struct {
	URL    string `json:"url"`
	Height *int   `json:"height"`
	Width  *int   `json:"width"`
}

type apiArtist struct {
	Name string `json:"name"`
}

type apiTrack struct {
	ID           string      `json:"id"`
	URI          string      `json:"uri"`
	Name         string      `json:"name"`
	DurationMS   int         `json:"duration_ms"`
	Artists      []apiArtist `json:"artists"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
}

type apiPlaylistItem struct {
	Track *apiTrack `json:"track"`
}

type apiTrackPage struct {
	Items  []apiPlaylistItem `json:"items"`
	Next   *string           `json:"next"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	Total  int               `json:"total"`
}

type apiPlaylist struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Images      []apiImage   `json:"images"`
	Tracks      apiTrackPage `json:"tracks"`
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

type trackURI struct {
	URI string `json:"uri"`
}

type removeTracksRequest struct {
	Tracks []trackURI `json:"tracks"`
}

func (t *apiTrack) toModel() models.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return models.Track{
		ID:          t.URI,
		Name:        t.Name,
		Artists:     strings.Join(names, ", "),
		DurationMS:  t.DurationMS,
		ExternalURL: t.ExternalURLs.Spotify,
		Album:       t.Album.Name,
	}
}

func (p *apiPlaylist) toModel(items []apiPlaylistItem) *models.Playlist {
	images := make([]models.Image, 0, len(p.Images))
	for _, img := range p.Images {
		image := models.Image{URL: img.URL}
		if img.Height != nil {
			image.Height = *img.Height
		}
		if img.Width != nil {
			image.Width = *img.Width
		}
		images = append(images, image)
	}

	tracks := make([]models.Track, 0, len(items))
	for _, item := range items {
		// Local files and removed tracks come back without a track object.
		if item.Track == nil || item.Track.URI == "" {
			continue
		}
		tracks = append(tracks, item.Track.toModel())
	}

	return &models.Playlist{
		ID:          p.ID,
		Name:        p.Name,
		Description: html.UnescapeString(p.Description),
		Images:      images,
		Tracks:      tracks,
	}
}
