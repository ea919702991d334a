package http

import (
	"net/http"
	"strings"

	"github.com/parsascontentcorner/fansite/internal/admin"
)

type banRequest struct {
	SessionID string `json:"sessionId"`
	TwitchID  string `json:"twitchId"`
	Action    string `json:"action"`
}

type trustedRequest struct {
	SessionID      string `json:"sessionId"`
	TargetTwitchID string `json:"targetTwitchId"`
	IsTrusted      *bool  `json:"isTrusted"`
}

type clearCacheRequest struct {
	SessionID string `json:"sessionId"`
	CacheType string `json:"cacheType"`
}

// BanUserHandler bans or unbans an account. Owner only.
func (h *Handlers) BanUserHandler(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	owner, err := h.auth.Authenticate(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.admin.Ban(r.Context(), owner, req.TwitchID, req.Action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	verb := "banned"
	if req.Action == admin.ActionUnban {
		verb = "unbanned"
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "User " + verb + " successfully",
		"data": map[string]interface{}{
			"twitchId":    account.TwitchID,
			"displayName": account.DisplayName,
			"isBanned":    account.IsBanned,
		},
	})
}

// SetTrustedHandler lets an account add tracks without approval. Owner only.
func (h *Handlers) SetTrustedHandler(w http.ResponseWriter, r *http.Request) {
	var req trustedRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SessionID == "" || req.TargetTwitchID == "" || req.IsTrusted == nil {
		h.writeError(w, r, errMissingParams)
		return
	}

	owner, err := h.auth.Authenticate(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.admin.SetTrusted(r.Context(), owner, req.TargetTwitchID, *req.IsTrusted)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"twitchId":    account.TwitchID,
			"displayName": account.DisplayName,
			"isTrusted":   account.IsTrusted,
		},
	})
}

// ClearCacheHandler evicts cached views by hand. Owner only.
func (h *Handlers) ClearCacheHandler(w http.ResponseWriter, r *http.Request) {
	var req clearCacheRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SessionID == "" {
		h.writeError(w, r, badRequest("Missing sessionId"))
		return
	}

	owner, err := h.auth.Authenticate(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cleared, err := h.admin.ClearCache(r.Context(), owner, req.CacheType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	names := make([]string, len(cleared))
	for i, t := range cleared {
		names[i] = string(t)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       "Cleared cache for: " + strings.Join(names, ", "),
		"clearedCaches": names,
	})
}
