// Package token provides refresh-token digest primitives for vidtube.
//
// The user record never stores a refresh token in a usable form. Callers hash
// the token with a Hasher and persist only the 64-char hex digest.
//
// Modes:
// - HMAC-SHA256(token, key) when VIDTUBE_TOKEN_HMAC_KEY is configured.
// - SHA-256(token) for local development when no key is configured.
//
// When VIDTUBE_REQUIRE_TOKEN_HMAC=true the app refuses to start without a key
// of at least 32 bytes (see app.ValidateSecurityConfig).
package token
