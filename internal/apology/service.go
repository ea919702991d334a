// Package apology runs the apology microsite: each Twitch account may publish
// one sanitized apology, listed publicly with a plain-text excerpt.
package apology

import (
	"context"
	"database/sql"
	"errors"
	"html"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/database"
	"github.com/parsascontentcorner/fansite/internal/models"
)

const (
	// ExcerptLength is the rune length of listing excerpts
	ExcerptLength = 240

	DefaultPageSize = 10
	MaxPageSize     = 50
)

// Error is an apology operation failure carrying the HTTP status it maps to
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status of the failure
func (e *Error) StatusCode() int {
	return e.Status
}

var (
	errMissingSession = &Error{Status: http.StatusBadRequest, Message: "No session ID provided"}
	errMissingFields  = &Error{Status: http.StatusBadRequest, Message: "Apology and subject are required"}
	errMissingID      = &Error{Status: http.StatusBadRequest, Message: "No id provided"}
	errInvalidSession = &Error{Status: http.StatusUnauthorized, Message: "Invalid session"}
	errNotFound       = &Error{Status: http.StatusNotFound, Message: "Apology not found"}
	errSubmitFailed   = &Error{Status: http.StatusInternalServerError, Message: "Failed to submit apology"}
	errInternal       = &Error{Status: http.StatusInternalServerError, Message: "Internal server error"}
)

// Store is the apology persistence
type Store interface {
	GetAccountBySession(ctx context.Context, sessionID string) (*models.Account, error)
	SubmitApology(ctx context.Context, apology *models.Apology) error
	GetApologyByTwitchID(ctx context.Context, twitchID string) (*models.Apology, error)
	ListPublishedApologies(ctx context.Context, limit, offset int) ([]*models.Apology, int, error)
}

// Service handles apology submission and listing
type Service struct {
	store  Store
	body   *bluemonday.Policy
	text   *bluemonday.Policy
	logger *zap.Logger
}

// NewService creates an apology service
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		body:   bluemonday.UGCPolicy(),
		text:   bluemonday.StrictPolicy(),
		logger: logger,
	}
}

// Submit stores the caller's apology, replacing any earlier one. The body
// keeps user-generated-content markup; the subject is reduced to text.
func (s *Service) Submit(ctx context.Context, sessionID, subject, body string) (*models.Apology, error) {
	if sessionID == "" {
		return nil, errMissingSession
	}

	subject = s.plainText(subject)
	body = strings.TrimSpace(s.body.Sanitize(body))
	if subject == "" || body == "" {
		return nil, errMissingFields
	}

	account, err := s.store.GetAccountBySession(ctx, sessionID)
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, errInvalidSession
	}
	if err != nil {
		s.logger.Error("failed to resolve session", zap.Error(err))
		return nil, errInternal
	}
	if account.IsBanned {
		return nil, &Error{Status: http.StatusForbidden, Message: "Account is banned"}
	}

	apology := &models.Apology{
		TwitchID:       account.TwitchID,
		TwitchUsername: account.DisplayName,
		Subject:        sql.NullString{String: subject, Valid: true},
		Body:           sql.NullString{String: body, Valid: true},
		SessionID:      sql.NullString{String: sessionID, Valid: true},
	}
	if err := s.store.SubmitApology(ctx, apology); err != nil {
		s.logger.Error("failed to submit apology", zap.String("twitch_id", account.TwitchID), zap.Error(err))
		return nil, errSubmitFailed
	}

	s.logger.Info("apology submitted",
		zap.String("twitch_id", account.TwitchID),
		zap.Int("body_length", len(body)),
	)
	return apology, nil
}

// Get returns a published apology by the author's Twitch id
func (s *Service) Get(ctx context.Context, twitchID string) (*models.Apology, error) {
	if twitchID == "" {
		return nil, errMissingID
	}

	apology, err := s.store.GetApologyByTwitchID(ctx, twitchID)
	if errors.Is(err, database.ErrApologyNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		s.logger.Error("failed to get apology", zap.String("twitch_id", twitchID), zap.Error(err))
		return nil, errInternal
	}
	if !apology.HasContent() {
		return nil, errNotFound
	}
	return apology, nil
}

// List returns one page of published apologies, newest first. page counts
// from 1; out-of-range values fall back to the defaults.
func (s *Service) List(ctx context.Context, page, pageSize int) (*models.ApologyPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	apologies, total, err := s.store.ListPublishedApologies(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error("failed to list apologies", zap.Error(err))
		return nil, errInternal
	}

	items := make([]models.ApologySummary, 0, len(apologies))
	for _, a := range apologies {
		items = append(items, models.ApologySummary{
			ID:       a.TwitchID,
			Username: a.TwitchUsername,
			Subject:  a.Subject.String,
			Excerpt:  s.Excerpt(a.Body.String),
		})
	}

	return &models.ApologyPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Excerpt strips markup from body, collapses whitespace and cuts the text to
// ExcerptLength runes, marking a cut with an ellipsis
func (s *Service) Excerpt(body string) string {
	text := s.plainText(body)
	if utf8.RuneCountInString(text) <= ExcerptLength {
		return text
	}

	runes := []rune(text)
	return strings.TrimRight(string(runes[:ExcerptLength]), " ") + "…"
}

// plainText drops all markup and decodes the entities the strict policy
// leaves behind, collapsing runs of whitespace
func (s *Service) plainText(value string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s.text.Sanitize(value))), " ")
}
