package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/cache"
	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/twitch"
)

type eventSubEnvelope struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// TwitchStatusHandler reports whether the channel is live
func (h *Handlers) TwitchStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.statusCache != nil {
		snapshot, err := h.statusCache.Get(ctx, models.CacheTypeTwitchStatus)
		if err == nil {
			h.writeJSON(w, http.StatusOK, snapshot.Payload)
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			h.logger.Warn("twitch status cache read failed", zap.Error(err))
		}
	}

	status, err := h.streams.GetStreamStatus(ctx, h.broadcasterLogin)
	if err != nil {
		h.logger.Error("failed to fetch stream status", zap.String("login", h.broadcasterLogin), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, message{Message: "Failed to fetch Twitch stream status"})
		return
	}

	if h.statusCache != nil {
		if _, err := h.statusCache.PutTTL(ctx, models.CacheTypeTwitchStatus, status, h.statusTTL); err != nil {
			h.logger.Warn("twitch status cache write failed", zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusOK, status)
}

// EventSubHandler receives Twitch EventSub webhook deliveries
func (h *Handlers) EventSubHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := twitch.ReadMessage(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, message{Message: "Malformed request"})
		return
	}

	if err := h.eventsub.Verify(msg); err != nil {
		status, text := http.StatusForbidden, "Invalid signature"
		switch {
		case errors.Is(err, twitch.ErrNoSecret):
			status, text = http.StatusInternalServerError, "No secret configured"
		case errors.Is(err, twitch.ErrMissingHeaders):
			status, text = http.StatusBadRequest, "Missing headers"
		case errors.Is(err, twitch.ErrStaleMessage):
			text = "Message too old"
		}
		h.logger.Warn("rejected eventsub message",
			zap.String("message_id", msg.ID),
			zap.String("message_type", msg.Type),
			zap.Error(err),
		)
		h.writeJSON(w, status, message{Message: text})
		return
	}

	var envelope eventSubEnvelope
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		h.logger.Warn("failed to parse eventsub body", zap.String("message_id", msg.ID), zap.Error(err))
	}

	if msg.Type == twitch.MessageTypeVerification {
		if envelope.Challenge == "" {
			h.writeJSON(w, http.StatusBadRequest, message{Message: "Malformed verification"})
			return
		}
		h.logger.Info("eventsub subscription verified",
			zap.String("subscription_id", envelope.Subscription.ID),
			zap.String("subscription_type", envelope.Subscription.Type),
		)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(envelope.Challenge)); err != nil {
			h.logger.Error("failed to write eventsub challenge", zap.Error(err))
		}
		return
	}

	seen, err := h.eventsub.Seen(r.Context(), msg.ID)
	if err != nil {
		h.logger.Warn("eventsub replay check failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	if seen {
		h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	switch msg.Type {
	case twitch.MessageTypeNotification:
		h.logger.Info("eventsub notification received",
			zap.String("message_id", msg.ID),
			zap.String("subscription_type", envelope.Subscription.Type),
			zap.ByteString("event", envelope.Event),
		)
	case twitch.MessageTypeRevocation:
		h.logger.Warn("eventsub subscription revoked",
			zap.String("subscription_id", envelope.Subscription.ID),
			zap.String("subscription_type", envelope.Subscription.Type),
			zap.String("status", envelope.Subscription.Status),
		)
	default:
		h.logger.Debug("ignoring eventsub message", zap.String("message_type", msg.Type))
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
