package spotify

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed Spotify call
type Kind int

const (
	KindUpstream Kind = iota
	KindDuplicate
	KindNotFound
	KindUnauthorized
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "upstream"
	}
}

// ErrNotConfigured is returned when no playlist owner credential is available
var ErrNotConfigured = errors.New("spotify playlist owner credentials not configured")

// Error is a Spotify API failure with its classification
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("spotify API %s (status %d): %s", e.Kind, e.Status, e.Message)
}

// IsKind reports whether err is a Spotify error of the given kind
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// classify maps a response status and the API's error message onto a Kind
func classify(status int, message string) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadRequest:
		lower := strings.ToLower(message)
		switch {
		case strings.Contains(lower, "duplicate"):
			return KindDuplicate
		case strings.Contains(lower, "invalid base62 id"), strings.Contains(lower, "invalid track uri"),
			strings.Contains(lower, "non existing id"), strings.Contains(lower, "non-existing id"):
			return KindNotFound
		}
	}
	return KindUpstream
}
