package auth

import "errors"

var (
	// ErrUnauthenticated maps to 401: missing or invalid credentials.
	ErrUnauthenticated = errors.New("missing or invalid credentials")

	// ErrForbidden maps to 403: the credentials are valid but the caller
	// is not permitted.
	ErrForbidden = errors.New("access denied")

	// ErrTokenDecode maps to 400: the bearer token could not be decoded
	// at all (as opposed to failing validation).
	ErrTokenDecode = errors.New("failed to decode bearer token")
)
