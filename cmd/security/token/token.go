package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "VIDTUBE_TOKEN_HMAC_KEY"

	// DigestHexLen is the length of every digest produced by this package.
	DigestHexLen = 64
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher digests refresh tokens for server-side storage.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key. An empty key selects SHA-256 mode.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	return Hasher{key: cp}
}

// HasherFromEnv builds a Hasher from VIDTUBE_TOKEN_HMAC_KEY (SHA-256 mode when unset).
func HasherFromEnv() Hasher {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	return NewHasher([]byte(raw))
}

// Keyed reports whether the hasher runs in HMAC mode.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hex returns the 64-char hex digest of tok.
func (h Hasher) Hex(tok string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}

// Equal compares two digests in constant time.
// Anything that is not exactly DigestHexLen long never matches.
func Equal(a, b string) bool {
	if len(a) != DigestHexLen || len(b) != DigestHexLen {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}
