package auth

import "net/http"

// Error is a login or session failure carrying the HTTP status it maps to
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

func newError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Messages shown to viewers when an upstream step of login fails
const (
	msgTokenFailed   = "Failed to get Twitch auth token, please try again. If the problem persists, please message a mod for help."
	msgUserFailed    = "Failed to get Twitch user data, please try again. If the problem persists, please message a mod for help."
	msgConnectFailed = "Failed to connect Twitch account, please try again. If the problem persists, please message a mod for help."
)

var (
	errMissingCode     = newError(http.StatusBadRequest, "No Twitch auth code provided")
	errMissingRedirect = newError(http.StatusBadRequest, "No redirect URL provided")
	errMissingSession  = newError(http.StatusBadRequest, "Missing params")
	errInvalidSession  = newError(http.StatusUnauthorized, "Invalid session")
	errBanned          = newError(http.StatusForbidden, "Account is banned")
)
