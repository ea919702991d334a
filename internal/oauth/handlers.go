// Package oauth provides the HTTP handlers of the broadcaster authorization flow,
// which lets the channel owner grant the token used for subscription checks.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/fansite/internal/credentials"
	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/twitch"
)

// Authenticator resolves a session id to an account
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (*models.Account, error)
}

// StateIssuer issues and consumes single-use OAuth states
type StateIssuer interface {
	GenerateState() (string, error)
	StoreState(ctx context.Context, state, purpose string) error
	ValidateState(ctx context.Context, state, purpose string) error
}

// TwitchAuthorizer is the part of the Twitch client the flow needs
type TwitchAuthorizer interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code, redirectURL string) (*oauth2.Token, error)
	GetUser(ctx context.Context, accessToken string) (*twitch.User, error)
}

// CredentialStore persists the broadcaster token
type CredentialStore interface {
	Save(ctx context.Context, key string, token *models.UpstreamToken) error
	Load(ctx context.Context, key string) (*models.UpstreamToken, error)
}

// TokenInfo is the stored broadcaster authorization without its secrets
type TokenInfo struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Scope       []string  `json:"scope"`
	ObtainedAt  time.Time `json:"obtained_at"`
}

// Handlers contains the broadcaster authorization handlers
type Handlers struct {
	states   StateIssuer
	twitch   TwitchAuthorizer
	creds    CredentialStore
	sessions Authenticator
	adminID  string
	logger   *zap.Logger
}

// NewHandlers creates a new handlers instance. adminID is the only Twitch
// account allowed to complete the flow.
func NewHandlers(states StateIssuer, twitchClient TwitchAuthorizer, creds CredentialStore, sessions Authenticator, adminID string, logger *zap.Logger) *Handlers {
	return &Handlers{
		states:   states,
		twitch:   twitchClient,
		creds:    creds,
		sessions: sessions,
		adminID:  adminID,
		logger:   logger,
	}
}

// AuthorizeHandler redirects the broadcaster to the Twitch consent page
func (h *Handlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		h.renderError(w, http.StatusInternalServerError, "Authorization failed", "Could not start the Twitch authorization.")
		return
	}

	if err := h.states.StoreState(r.Context(), state, models.StatePurposeBroadcaster); err != nil {
		h.logger.Error("failed to store state", zap.Error(err))
		h.renderError(w, http.StatusInternalServerError, "Authorization failed", "Could not start the Twitch authorization.")
		return
	}

	http.Redirect(w, r, h.twitch.GetAuthURL(state), http.StatusFound)
}

// CallbackHandler handles the OAuth callback from Twitch
func (h *Handlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		errDesc := r.URL.Query().Get("error_description")
		h.logger.Error("oauth error from twitch",
			zap.String("error", errParam),
			zap.String("description", errDesc),
		)
		h.renderError(w, http.StatusBadRequest, "Authorization failed", fmt.Sprintf("Twitch returned an error: %s", errDesc))
		return
	}

	if code == "" || state == "" {
		h.logger.Warn("missing required parameters", zap.Bool("has_code", code != ""), zap.Bool("has_state", state != ""))
		h.renderError(w, http.StatusBadRequest, "Invalid request", "Missing required parameters (code or state)")
		return
	}

	ctx := r.Context()

	if err := h.states.ValidateState(ctx, state, models.StatePurposeBroadcaster); err != nil {
		h.logger.Warn("rejected broadcaster callback", zap.Error(err))
		h.renderError(w, http.StatusBadRequest, "Authorization failed", "The authorization link is invalid or has expired.")
		return
	}

	token, err := h.twitch.ExchangeCode(ctx, code, "")
	if err != nil {
		h.logger.Error("failed to exchange broadcaster code", zap.Error(err))
		h.renderError(w, http.StatusInternalServerError, "Authorization failed", "Failed to get a token from Twitch. Please try again.")
		return
	}

	user, err := h.twitch.GetUser(ctx, token.AccessToken)
	if err != nil {
		h.logger.Error("failed to get broadcaster user", zap.Error(err))
		h.renderError(w, http.StatusInternalServerError, "Authorization failed", "Failed to get Twitch user data. Please try again.")
		return
	}

	if user.ID != h.adminID {
		h.logger.Warn("broadcaster authorization from another account",
			zap.String("twitch_id", user.ID),
			zap.String("login", user.Login),
		)
		h.renderError(w, http.StatusForbidden, "Unauthorized", "Unauthorized: not the channel owner")
		return
	}

	stored := credentials.Merge(nil, token)
	stored.OwnerID = user.ID
	stored.OwnerName = user.DisplayName

	if err := h.creds.Save(ctx, credentials.KeyTwitchAdmin, stored); err != nil {
		h.logger.Error("failed to store broadcaster token", zap.Error(err))
		h.renderError(w, http.StatusInternalServerError, "Authorization failed", "Failed to save the authorization. Please try again.")
		return
	}

	h.logger.Info("broadcaster authorization stored",
		zap.String("twitch_id", user.ID),
		zap.Strings("scope", stored.Scope),
		zap.Time("expiry", stored.Expiry),
	)

	h.renderSuccess(w, user.DisplayName)
}

// InfoHandler reports which account the stored broadcaster token belongs to. Owner only.
func (h *Handlers) InfoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := h.sessions.Authenticate(ctx, r.URL.Query().Get("sessionId"))
	if err != nil {
		var coded interface{ StatusCode() int }
		if errors.As(err, &coded) {
			h.writeJSON(w, coded.StatusCode(), map[string]string{"message": err.Error()})
			return
		}
		h.logger.Error("failed to authenticate session", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		return
	}
	if !account.IsOwner {
		h.writeJSON(w, http.StatusForbidden, map[string]string{"message": "Owner-only"})
		return
	}

	token, err := h.creds.Load(ctx, credentials.KeyTwitchAdmin)
	if errors.Is(err, credentials.ErrNotFound) {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": nil})
		return
	}
	if err != nil {
		h.logger.Error("failed to load broadcaster token", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": TokenInfo{
			ID:          token.OwnerID,
			DisplayName: token.OwnerName,
			Scope:       token.Scope,
			ObtainedAt:  token.ObtainedAt,
		},
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// renderSuccess renders a success HTML page
func (h *Handlers) renderSuccess(w http.ResponseWriter, displayName string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	page := fmt.Sprintf(`
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Authorization Successful</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #9146ff 0%%, #1db954 100%%);
        }
        .container {
            background: white;
            padding: 3rem;
            border-radius: 10px;
            box-shadow: 0 10px 40px rgba(0,0,0,0.2);
            text-align: center;
            max-width: 400px;
        }
        h1 {
            color: #333;
            margin: 0 0 1rem;
        }
        p {
            color: #666;
            margin: 0;
            line-height: 1.6;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization Successful!</h1>
        <p>Subscription checks now use the token of %s.</p>
        <p style="margin-top: 1rem;">You can close this window.</p>
    </div>
</body>
</html>
`, html.EscapeString(displayName))

	if _, err := w.Write([]byte(page)); err != nil {
		h.logger.Error("failed to write success response", zap.Error(err))
	}
}

// renderError renders an error HTML page
func (h *Handlers) renderError(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	title = html.EscapeString(title)
	page := fmt.Sprintf(`
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #9146ff 0%%, #1db954 100%%);
        }
        .container {
            background: white;
            padding: 3rem;
            border-radius: 10px;
            box-shadow: 0 10px 40px rgba(0,0,0,0.2);
            text-align: center;
            max-width: 400px;
        }
        h1 {
            color: #333;
            margin: 0 0 1rem;
        }
        p {
            color: #666;
            margin: 0;
            line-height: 1.6;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
        <p style="margin-top: 1rem;">Please close this window and try again.</p>
    </div>
</body>
</html>
`, title, title, html.EscapeString(message))

	if _, err := w.Write([]byte(page)); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
