package session

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Service matches exactly one of the
// first eight with errors.Is; the token kinds only appear wrapped inside
// ErrUnauthorized.
var (
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrMismatch           = errors.New("password confirmation mismatch")
	ErrAssetUploadFailed  = errors.New("asset upload failed")
	ErrInternal           = errors.New("internal error")

	// ErrTokenMalformed is returned when a token cannot be parsed at all.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenInvalid covers bad signatures, wrong algorithms, wrong issuer
	// and missing claims.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is returned once exp (plus clock skew) has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)

// Error is the typed outcome of a failed Service operation.
//
// Msg is safe to show to API clients. Err holds the underlying cause, which
// may contain internal detail and must only be logged.
type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

var kinds = []error{
	ErrValidation,
	ErrConflict,
	ErrNotFound,
	ErrInvalidCredentials,
	ErrUnauthorized,
	ErrMismatch,
	ErrAssetUploadFailed,
	ErrInternal,
}

// KindOf returns the error kind of err, or ErrInternal for foreign errors.
func KindOf(err error) error {
	var se *Error
	if errors.As(err, &se) && se.Kind != nil {
		return se.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// Message returns the client-safe message of err.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Msg != "" {
		return se.Msg
	}
	return KindOf(err).Error()
}

func newError(op string, kind error, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

func internal(op string, cause error) *Error {
	return &Error{Op: op, Kind: ErrInternal, Msg: "something went wrong", Err: cause}
}

// unauthorized wraps a token verification failure (or any cause) as ErrUnauthorized.
func unauthorized(op, msg string, cause error) *Error {
	return &Error{Op: op, Kind: ErrUnauthorized, Msg: msg, Err: cause}
}

// tokenMessage picks the client message for a token verification failure.
func tokenMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "token expired"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed token"
	default:
		return fallback
	}
}

// outcome is the metric label for an operation result.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch KindOf(err) {
	case ErrValidation:
		return "validation"
	case ErrConflict:
		return "conflict"
	case ErrNotFound:
		return "not_found"
	case ErrInvalidCredentials:
		return "invalid_credentials"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrMismatch:
		return "mismatch"
	case ErrAssetUploadFailed:
		return "asset_upload_failed"
	default:
		return "internal"
	}
}
