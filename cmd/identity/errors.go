package identity

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrNotActive    = errors.New("not_active")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// - Kind MUST be one of the sentinel kinds when applicable (ErrInvalidInput, ErrNotFound, ...).
// - Msg may include human-readable context; do not include secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness conflict for a specific logical field.
// Field is a stable logical name: "username", "email".
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// notActiveRotate is tied to RotateRefreshTokenHash.
// It is the same failure for "no token stored" and "token mismatch", so
// callers cannot tell which one happened.
func notActiveRotate() error {
	return OpError{
		Op:   "identity.RotateRefreshTokenHash",
		Kind: ErrNotActive,
		Msg:  "refresh token not active or mismatch",
	}
}

// credentialChanged reports that the password hash a caller verified is no
// longer the stored one.
func credentialChanged(op string) error {
	return OpError{Op: op, Kind: ErrNotActive, Msg: "password hash changed"}
}

func userNotFound(op string) error {
	return NotFoundError{Op: op, Resource: "user"}
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// ConflictField returns the conflicting field of a ConflictError ("" otherwise).
func ConflictField(err error) string {
	var ce ConflictError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsNotActive reports whether err represents ErrNotActive.
func IsNotActive(err error) bool { return errors.Is(err, ErrNotActive) }
