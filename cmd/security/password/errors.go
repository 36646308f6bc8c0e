package password

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")
)

// IsPolicyError reports whether err is a password policy violation
// (as opposed to a hashing failure).
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrPasswordTooLong) ||
		errors.Is(err, ErrWeakPassword)
}
