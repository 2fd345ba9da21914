package tokens

import "errors"

var (
	// ErrConfiguration means the signing secret or algorithm is missing or unsupported
	ErrConfiguration = errors.New("token configuration error")
	// ErrInvalidToken covers bad signatures, malformed input and expired or subjectless claims
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidRefreshToken is returned when a refresh token cannot mint a new access token
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrEmptySubject is returned when issuing a token for an empty subject
	ErrEmptySubject = errors.New("token subject is empty")
)
