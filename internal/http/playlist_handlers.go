package http

import (
	"context"
	"encoding/json"
	"net/http"
)

type trackRequest struct {
	SessionID string `json:"sessionId"`
	TrackURI  string `json:"trackUri"`
}

type pendingRequest struct {
	SessionID string `json:"sessionId"`
	SpotifyID string `json:"spotifyId"`
}

// PlaylistHandler serves the cached playlist view
func (h *Handlers) PlaylistHandler(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, "playlist", h.playlist.Playlist)
}

// OwnershipHandler serves the cached track ownership view
func (h *Handlers) OwnershipHandler(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, "ownership", h.playlist.Ownership)
}

func (h *Handlers) serveView(w http.ResponseWriter, r *http.Request, field string, read func(ctx context.Context) (json.RawMessage, bool, error)) {
	view, cached, err := read(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		field:     view,
		"cached":  cached,
	})
}

// AddTrackHandler adds a track, or queues it for approval
func (h *Handlers) AddTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SessionID == "" || req.TrackURI == "" {
		h.writeError(w, r, errMissingParams)
		return
	}

	account, err := h.auth.Authenticate(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.playlist.Add(r.Context(), account, req.TrackURI)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if result.Pending {
		h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"success":   true,
			"pending":   true,
			"remaining": result.Remaining,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"remaining": result.Remaining,
	})
}

// RemoveTrackHandler removes a track the caller added
func (h *Handlers) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SessionID == "" || req.TrackURI == "" {
		h.writeError(w, r, errMissingParams)
		return
	}

	account, err := h.auth.Authenticate(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.playlist.Remove(r.Context(), account, req.TrackURI); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PendingSongsHandler lists the moderation queue. Owner only.
func (h *Handlers) PendingSongsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.writeError(w, r, badRequest("Missing sessionId"))
		return
	}

	account, err := h.auth.Authenticate(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	songs, err := h.playlist.ListPending(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"songs":   songs,
	})
}

// ApproveSongHandler moves a queued track onto the playlist. Owner only.
func (h *Handlers) ApproveSongHandler(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, func(ctx context.Context, req pendingRequest) error {
		account, err := h.auth.Authenticate(ctx, req.SessionID)
		if err != nil {
			return err
		}
		_, err = h.playlist.Approve(ctx, account, req.SpotifyID)
		return err
	})
}

// DisapproveSongHandler drops a queued track. Owner only.
func (h *Handlers) DisapproveSongHandler(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, func(ctx context.Context, req pendingRequest) error {
		account, err := h.auth.Authenticate(ctx, req.SessionID)
		if err != nil {
			return err
		}
		return h.playlist.Disapprove(ctx, account, req.SpotifyID)
	})
}

func (h *Handlers) moderate(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, req pendingRequest) error) {
	var req pendingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SessionID == "" || req.SpotifyID == "" {
		h.writeError(w, r, errMissingParams)
		return
	}

	if err := apply(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
