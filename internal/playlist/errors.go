package playlist

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/parsascontentcorner/fansite/internal/spotify"
)

// Error is a playlist operation failure carrying the HTTP status it maps to
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of the failure
func (e *Error) StatusCode() int {
	return e.Status
}

var (
	errInvalidTrack   = &Error{Status: http.StatusBadRequest, Message: "Invalid Spotify track"}
	errSubscriberOnly = &Error{Status: http.StatusForbidden, Message: "Subscriber-only"}
	errOwnerOnly      = &Error{Status: http.StatusForbidden, Message: "Owner-only"}
	errNotAdder       = &Error{Status: http.StatusForbidden, Message: "You can only remove tracks you added"}
	errDuplicate      = &Error{Status: http.StatusConflict, Message: "Track already in playlist"}
	errAlreadyPending = &Error{Status: http.StatusConflict, Message: "Track already awaiting approval"}
	errNotInPlaylist  = &Error{Status: http.StatusNotFound, Message: "Track not found in playlist"}
	errNotPending     = &Error{Status: http.StatusNotFound, Message: "Song not found in pending list"}
)

func internalError(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "Internal server error", Err: err}
}

func fetchError(message string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: message, Err: err}
}

func quotaError(limit int) *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("Daily limit reached (%d songs per day for your tier)", limit),
	}
}

// upstreamError maps a Spotify failure onto the response the caller sees.
// Only duplicate and not-found keep their own status.
func upstreamError(err error) *Error {
	switch {
	case errors.Is(err, spotify.ErrNotConfigured):
		return &Error{Status: http.StatusNotImplemented, Message: "Server not configured to modify playlist", Err: err}
	case spotify.IsKind(err, spotify.KindDuplicate):
		return &Error{Status: http.StatusConflict, Message: errDuplicate.Message, Err: err}
	case spotify.IsKind(err, spotify.KindNotFound):
		return &Error{Status: http.StatusNotFound, Message: "Track or playlist not found", Err: err}
	default:
		return internalError(err)
	}
}
