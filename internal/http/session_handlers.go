package http

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/parsascontentcorner/fansite/internal/models"
)

type loginRequest struct {
	Code        string `json:"code"`
	RedirectURL string `json:"redirectURL"`
}

type loginData struct {
	TwitchID       string  `json:"twitchID"`
	TwitchUsername string  `json:"twitchUsername"`
	SessionID      string  `json:"sessionId"`
	Subject        *string `json:"subject"`
	Apology        *string `json:"apology"`
	IsSubscriber   bool    `json:"isSubscriber"`
	IsOwner        bool    `json:"isOwner"`
	IsTrusted      bool    `json:"isTrusted"`
	Tier           *string `json:"tier"`
}

// accountView is an account as the site sees it
type accountView struct {
	TwitchID     string  `json:"twitch_id"`
	DisplayName  string  `json:"display_name"`
	IsSubscriber bool    `json:"is_subscriber"`
	Tier         *string `json:"subscription_tier"`
	IsGiftedSub  bool    `json:"is_gifted_sub"`
	IsOwner      bool    `json:"is_owner"`
	IsTrusted    bool    `json:"is_trusted"`
	IsBanned     bool    `json:"is_banned"`
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func newAccountView(a *models.Account) accountView {
	return accountView{
		TwitchID:     a.TwitchID,
		DisplayName:  a.DisplayName,
		IsSubscriber: a.IsSubscriber,
		Tier:         nullable(a.SubscriptionTier),
		IsGiftedSub:  a.IsGiftedSub,
		IsOwner:      a.IsOwner,
		IsTrusted:    a.IsTrusted,
		IsBanned:     a.IsBanned,
	}
}

// LoginHandler exchanges a Twitch authorization code for a site session
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Code, req.RedirectURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	account := result.Account
	data := loginData{
		TwitchID:       account.TwitchID,
		TwitchUsername: account.DisplayName,
		SessionID:      account.SessionID,
		IsSubscriber:   account.IsSubscriber,
		IsOwner:        account.IsOwner,
		IsTrusted:      account.IsTrusted,
		Tier:           nullable(account.SubscriptionTier),
	}
	if result.Apology != nil {
		data.Subject = nullable(result.Apology.Subject)
		data.Apology = nullable(result.Apology.Body)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Successfully logged in",
		"data":    data,
	})
}

// SessionHandler returns the account behind a session id
func (h *Handlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.writeError(w, r, badRequest("No sessionId provided"))
		return
	}

	account, err := h.auth.Authenticate(r.Context(), sessionID)
	if err != nil {
		var coded statusCoder
		if errors.As(err, &coded) && coded.StatusCode() == http.StatusUnauthorized {
			h.writeJSON(w, http.StatusNotFound, message{Message: "Not found"})
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"account": newAccountView(account),
	})
}
