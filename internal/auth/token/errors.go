package token

import "errors"

// Sentinel errors for token operations.
var (
	// ErrMalformedToken indicates that the token cannot be parsed.
	ErrMalformedToken = errors.New("token is malformed")

	// ErrBadSignature indicates that the token signature does not match.
	ErrBadSignature = errors.New("token signature is invalid")

	// ErrExpired indicates that the token exp claim is not in the future.
	ErrExpired = errors.New("token has expired")

	// ErrEmptySecret indicates that no signing secret was supplied.
	ErrEmptySecret = errors.New("signing secret is empty")

	// ErrInvalidClaims indicates that the claims cannot be serialized.
	ErrInvalidClaims = errors.New("claims cannot be encoded")
)
