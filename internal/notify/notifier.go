// Package notify posts playlist activity to a Discord channel. Events are
// queued in process and delivered by a background consumer so a slow or
// failing webhook never affects the request that produced the event.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const (
	topicTrackAdded = "playlist.track_added"

	spotifyGreen = 0x1db954
)

// TrackAdded describes a track that landed on the shared playlist
type TrackAdded struct {
	TrackURI    string `json:"track_uri"`
	TrackName   string `json:"track_name"`
	Artists     string `json:"artists"`
	Album       string `json:"album"`
	ExternalURL string `json:"external_url"`
	AddedBy     string `json:"added_by"`
	ApprovedBy  string `json:"approved_by,omitempty"`
}

// EmbedField is a name/value row of an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Embed is one Discord message embed
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields"`
}

// WebhookPayload is the body posted to the Discord webhook
type WebhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// Notifier queues track notifications and delivers them to a Discord webhook
type Notifier struct {
	pubsub     *gochannel.GoChannel
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
	started    atomic.Bool
	wg         sync.WaitGroup
	pending    sync.WaitGroup
}

// NewNotifier creates a notifier. An empty webhookURL disables delivery.
func NewNotifier(webhookURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 100,
			Persistent:          false,
		}, newZapAdapter(logger)),
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Start subscribes the webhook consumer; it runs until ctx is done or Close
func (n *Notifier) Start(ctx context.Context) error {
	messages, err := n.pubsub.Subscribe(ctx, topicTrackAdded)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topicTrackAdded, err)
	}

	n.started.Store(true)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for msg := range messages {
			n.handle(msg)
		}
	}()

	n.logger.Info("notifier started", zap.Bool("webhook_configured", n.webhookURL != ""))
	return nil
}

// TrackAdded queues a notification. Failures are logged, never returned.
func (n *Notifier) TrackAdded(event TrackAdded) {
	if n.webhookURL == "" {
		n.logger.Debug("discord webhook not configured, skipping notification",
			zap.String("track_uri", event.TrackURI),
		)
		return
	}
	if !n.started.Load() {
		n.logger.Warn("notifier not started, dropping notification",
			zap.String("track_uri", event.TrackURI),
		)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal notification", zap.Error(err))
		return
	}

	n.pending.Add(1)
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := n.pubsub.Publish(topicTrackAdded, msg); err != nil {
		n.pending.Done()
		n.logger.Error("failed to queue notification",
			zap.String("track_uri", event.TrackURI),
			zap.Error(err),
		)
	}
}

func (n *Notifier) handle(msg *message.Message) {
	defer n.pending.Done()
	// Delivery is attempted once; the message is acked either way.
	defer msg.Ack()

	var event TrackAdded
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		n.logger.Error("dropping malformed notification", zap.String("message_id", msg.UUID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := n.send(ctx, event); err != nil {
		n.logger.Error("failed to send Discord webhook",
			zap.String("message_id", msg.UUID),
			zap.String("track_uri", event.TrackURI),
			zap.Error(err),
		)
		return
	}

	n.logger.Debug("sent Discord notification", zap.String("track_uri", event.TrackURI))
}

// BuildPayload renders the Discord embed for an event
func BuildPayload(event TrackAdded) WebhookPayload {
	description := "Added by @" + event.AddedBy
	if event.ApprovedBy != "" {
		description += " (approved by @" + event.ApprovedBy + ")"
	}

	fields := []EmbedField{{Name: "Artist", Value: event.Artists}}
	if event.Album != "" {
		fields = append(fields, EmbedField{Name: "Album", Value: event.Album})
	}

	return WebhookPayload{Embeds: []Embed{{
		Title:       event.TrackName,
		Description: description,
		URL:         event.ExternalURL,
		Color:       spotifyGreen,
		Fields:      fields,
	}}}
}

func (n *Notifier) send(ctx context.Context, event TrackAdded) error {
	body, err := json.Marshal(BuildPayload(event))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Flush waits until every queued notification has been handled
func (n *Notifier) Flush() {
	n.pending.Wait()
}

// Close stops the consumer after the queue drains
func (n *Notifier) Close() error {
	err := n.pubsub.Close()
	n.wg.Wait()
	return err
}
