package identity

import (
	"time"

	"vidtube/cmd/identity/ids"
)

// NewULID returns a new ULID (26-char string).
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// ValidUserID reports whether id has the shape of a user ID.
func ValidUserID(id string) bool { return ids.IsULID(id) }
