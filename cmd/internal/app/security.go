package app

import (
	"errors"

	"vidtube/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// Fail-fast: a production deployment that asked for keyed refresh-token
// digests must not silently start with plain SHA-256.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 key, measured in bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but VIDTUBE_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but VIDTUBE_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HasherFromEnv().Keyed() {
		return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
