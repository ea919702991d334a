package twitch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventSub message types
const (
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeNotification = "notification"
	MessageTypeRevocation   = "revocation"
)

const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"

	maxMessageAge  = 10 * time.Minute
	maxMessageSize = 1 << 20
)

var (
	ErrNoSecret         = errors.New("eventsub secret not configured")
	ErrMissingHeaders   = errors.New("missing eventsub headers")
	ErrInvalidSignature = errors.New("invalid eventsub signature")
	ErrStaleMessage     = errors.New("eventsub message too old")
)

// Message is one EventSub webhook delivery
type Message struct {
	ID        string
	Type      string
	Timestamp string
	Signature string
	Body      []byte
}

// ReadMessage reads the EventSub headers and body of a webhook request
func ReadMessage(r *http.Request) (*Message, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read eventsub body: %w", err)
	}

	return &Message{
		ID:        r.Header.Get(headerMessageID),
		Type:      r.Header.Get(headerMessageType),
		Timestamp: r.Header.Get(headerMessageTimestamp),
		Signature: r.Header.Get(headerMessageSignature),
		Body:      body,
	}, nil
}

// Sign computes the signature Twitch sends for a message
func Sign(secret []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks EventSub signatures and drops replayed messages
type Verifier struct {
	secret []byte
	rdb    redis.Cmdable
	now    func() time.Time
	logger *zap.Logger
}

// NewVerifier creates an EventSub verifier
func NewVerifier(secret string, rdb redis.Cmdable, logger *zap.Logger) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		rdb:    rdb,
		now:    time.Now,
		logger: logger,
	}
}

// Verify checks the message headers, signature and age
func (v *Verifier) Verify(msg *Message) error {
	if len(v.secret) == 0 {
		return ErrNoSecret
	}
	if msg.ID == "" || msg.Timestamp == "" || msg.Signature == "" {
		return ErrMissingHeaders
	}

	expected := Sign(v.secret, msg.ID, msg.Timestamp, msg.Body)
	if !hmac.Equal([]byte(expected), []byte(msg.Signature)) {
		return ErrInvalidSignature
	}

	sent, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: unparsable timestamp", ErrStaleMessage)
	}
	if v.now().Sub(sent) > maxMessageAge {
		return ErrStaleMessage
	}

	return nil
}

// Seen records the message id and reports whether it was already delivered
func (v *Verifier) Seen(ctx context.Context, id string) (bool, error) {
	fresh, err := v.rdb.SetNX(ctx, "eventsub:message:"+id, v.now().UTC().Format(time.RFC3339), maxMessageAge).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record eventsub message: %w", err)
	}
	if !fresh {
		v.logger.Debug("duplicate eventsub message", zap.String("message_id", id))
	}
	return !fresh, nil
}
