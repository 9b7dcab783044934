package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by Login for a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned for malformed, forged or expired tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned for a password hash that is not Argon2id PHC.
	ErrInvalidHash = errors.New("auth: invalid password hash")

	// ErrNotConfigured is returned when no password hash or secret is set.
	ErrNotConfigured = errors.New("auth: not configured")
)
