// Package http exposes the site's JSON API over a chi router.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/config"
)

// Server wraps the HTTP server
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(handlers *Handlers, cfg config.ServerConfig, logger *zap.Logger) *Server {
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           NewRouter(handlers, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("HTTP server configured", zap.String("port", cfg.HTTPPort))

	return &Server{
		httpServer: httpServer,
		logger:     logger,
	}
}

// NewRouter builds the API routes
func NewRouter(h *Handlers, cfg config.ServerConfig, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", h.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.LoginHandler)
		r.Get("/session", h.SessionHandler)

		r.Post("/apologies", h.SubmitApologyHandler)
		r.Get("/apologies", h.ListApologiesHandler)
		r.Get("/apologies/{id}", h.GetApologyHandler)

		r.Route("/spotify", func(r chi.Router) {
			r.Get("/playlist", h.PlaylistHandler)
			r.Get("/ownership", h.OwnershipHandler)
			r.Post("/playlist/add", h.AddTrackHandler)
			r.Post("/playlist/remove", h.RemoveTrackHandler)

			r.Get("/pending", h.PendingSongsHandler)
			r.Post("/pending/approve", h.ApproveSongHandler)
			r.Post("/pending/disapprove", h.DisapproveSongHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/ban-user", h.BanUserHandler)
			r.Post("/set-trusted-user", h.SetTrustedHandler)
			r.Post("/clear-cache", h.ClearCacheHandler)

			if h.broadcaster != nil {
				r.Get("/twitch/auth", h.broadcaster.AuthorizeHandler)
				r.Get("/twitch/callback", h.broadcaster.CallbackHandler)
				r.Get("/twitch/info", h.broadcaster.InfoHandler)
			}
		})

		r.Get("/twitch/status", h.TwitchStatusHandler)
		r.Post("/eventsub/callback", h.EventSubHandler)
	})

	return r
}

// Serve starts the HTTP server
func (s *Server) Serve() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logger.Info("HTTP request completed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// corsMiddleware allows the configured site origins to call the API from the browser
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	wildcard := false
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		origins[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || origins[origin]) {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
