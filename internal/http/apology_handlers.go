package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type apologyRequest struct {
	SessionID string `json:"sessionId"`
	Subject   string `json:"subject"`
	Apology   string `json:"apology"`
}

// SubmitApologyHandler stores the caller's sanitized apology
func (h *Handlers) SubmitApologyHandler(w http.ResponseWriter, r *http.Request) {
	var req apologyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := h.apologies.Submit(r.Context(), req.SessionID, req.Subject, req.Apology); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetApologyHandler returns one published apology by twitch id
func (h *Handlers) GetApologyHandler(w http.ResponseWriter, r *http.Request) {
	apology, err := h.apologies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"username": apology.TwitchUsername,
		"subject":  apology.Subject.String,
		"apology":  apology.Body.String,
	})
}

// ListApologiesHandler returns a page of the public listing
func (h *Handlers) ListApologiesHandler(w http.ResponseWriter, r *http.Request) {
	// Unparsable values fall back to the defaults.
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	result, err := h.apologies.List(r.Context(), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
