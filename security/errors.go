package security

import "errors"

var (
	ErrSecretRequired          = errors.New("security: a signing secret is required when the filter is enabled")
	ErrSecretTooShort          = errors.New("security: signing secret must be at least 32 bytes")
	ErrInvalidPublicPath       = errors.New("security: invalid public path pattern")
	ErrMissingToken            = errors.New("missing bearer token")
	ErrTokenExpired            = errors.New("token has expired")
	ErrTokenInvalid            = errors.New("token is invalid")
	ErrUnexpectedSigningMethod = errors.New("unexpected signing method")
)
