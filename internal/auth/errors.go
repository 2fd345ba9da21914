package auth

import (
	"errors"
	"net/http"

	"socialhub/internal/security"
)

var (
	ErrIncorrectCredentials = errors.New("incorrect credentials")
	ErrAccountDisabled      = errors.New("account disabled")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrPasswordMismatch     = errors.New("passwords do not match")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrEmailTaken           = errors.New("email already registered")
	ErrAccountExists        = errors.New("account already exists")
	ErrUnknownEmail         = errors.New("no user with this email")
	ErrLinkInvalid          = errors.New("link expired or invalid")
	ErrPendingUnavailable   = errors.New("confirmation service unavailable")
)

// AuthError is an authentication or flow failure with the HTTP status to answer with.
// Message is what the client sees; Err keeps the cause for logs.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(status int, err error) *AuthError {
	return &AuthError{Status: status, Message: err.Error(), Err: err}
}

func incorrectCredentials() *AuthError {
	return newAuthError(http.StatusUnauthorized, ErrIncorrectCredentials)
}

// hashError keeps an over-long password a client error
func hashError(err error) *AuthError {
	if errors.Is(err, security.ErrPasswordTooLong) || errors.Is(err, security.ErrEmptyPassword) {
		return &AuthError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	return internalError(err)
}

func internalError(err error) *AuthError {
	return &AuthError{Status: http.StatusInternalServerError, Message: "internal authentication error", Err: err}
}

// statusOf maps any error to the status the controller answers with
func statusOf(err error) (int, string) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Status, ae.Message
	}
	return http.StatusInternalServerError, "internal server error"
}
