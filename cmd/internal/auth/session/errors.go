package session

import "errors"

var (
	// ErrNoToken is returned when validation is attempted with an empty token.
	ErrNoToken = errors.New("no session token")

	// ErrSessionNotFound is returned when a token does not match any stored session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the matched session is past its expiry.
	// The expired row has already been deleted when this error is returned.
	ErrSessionExpired = errors.New("session expired")
)
