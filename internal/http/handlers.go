package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/admin"
	"github.com/parsascontentcorner/fansite/internal/apology"
	"github.com/parsascontentcorner/fansite/internal/auth"
	"github.com/parsascontentcorner/fansite/internal/cache"
	"github.com/parsascontentcorner/fansite/internal/oauth"
	"github.com/parsascontentcorner/fansite/internal/playlist"
	"github.com/parsascontentcorner/fansite/internal/twitch"
)

const maxBodySize = 64 << 10

// HealthChecker is a dependency the health endpoint pings
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthFunc adapts a function to HealthChecker
type HealthFunc func(ctx context.Context) error

// Health calls f
func (f HealthFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// StreamSource reports the live state of the channel
type StreamSource interface {
	GetStreamStatus(ctx context.Context, login string) (*twitch.StreamStatus, error)
}

// Deps are the services behind the API
type Deps struct {
	Auth             *auth.Service
	Apologies        *apology.Service
	Playlist         *playlist.Service
	Admin            *admin.Service
	Broadcaster      *oauth.Handlers
	Streams          StreamSource
	BroadcasterLogin string
	StatusCache      *cache.Store
	StatusTTL        time.Duration
	EventSub         *twitch.Verifier
	Checks           map[string]HealthChecker
}

// Handlers contains all HTTP handlers
type Handlers struct {
	auth             *auth.Service
	apologies        *apology.Service
	playlist         *playlist.Service
	admin            *admin.Service
	broadcaster      *oauth.Handlers
	streams          StreamSource
	broadcasterLogin string
	statusCache      *cache.Store
	statusTTL        time.Duration
	eventsub         *twitch.Verifier
	checks           map[string]HealthChecker
	logger           *zap.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps, logger *zap.Logger) *Handlers {
	ttl := deps.StatusTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Handlers{
		auth:             deps.Auth,
		apologies:        deps.Apologies,
		playlist:         deps.Playlist,
		admin:            deps.Admin,
		broadcaster:      deps.Broadcaster,
		streams:          deps.Streams,
		broadcasterLogin: deps.BroadcasterLogin,
		statusCache:      deps.StatusCache,
		statusTTL:        ttl,
		eventsub:         deps.EventSub,
		checks:           deps.Checks,
		logger:           logger,
	}
}

// HealthHandler answers 200 when every dependency responds to a ping
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check.Health(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("Unavailable")); err != nil {
				h.logger.Error("failed to write health check response", zap.Error(err))
			}
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health check response", zap.Error(err))
	}
}

type message struct {
	Message string `json:"message"`
}

type statusCoder interface {
	StatusCode() int
}

var errMissingParams = &requestError{status: http.StatusBadRequest, message: "Missing params"}

// requestError is a failure detected by a handler before reaching a service
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string   { return e.message }
func (e *requestError) StatusCode() int { return e.status }

func badRequest(msg string) error {
	return &requestError{status: http.StatusBadRequest, message: msg}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// writeError maps typed service errors onto their status and message.
// Anything else is logged and answered with a generic 500.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var coded statusCoder
	if !errors.As(err, &coded) {
		h.logger.Error("unhandled error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusInternalServerError, message{Message: "Internal server error"})
		return
	}

	status := coded.StatusCode()
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if cause := errors.Unwrap(err); cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Warn("request rejected", fields...)
	}

	msg := err.Error()
	if e, ok := coded.(error); ok {
		msg = e.Error()
	}
	h.writeJSON(w, status, message{Message: msg})
}

// decodeJSON reads a JSON request body into v
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return badRequest("Invalid request body")
	}
	return nil
}
