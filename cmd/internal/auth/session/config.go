package session

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Minimum accepted length of each signing secret, in bytes.
const minSecretBytes = 32

// maxExpiryDays is the largest day count a time.Duration can hold.
const maxExpiryDays = int64(math.MaxInt64 / int64(24*time.Hour))

// Config defines all runtime configuration for the session subsystem.
//
// Secrets are loaded once at startup and never change afterwards.
type Config struct {
	// Issuer is the value set in the "iss" claim of both token types.
	Issuer string

	AccessTokenSecret []byte
	AccessTokenTTL    time.Duration

	RefreshTokenSecret []byte
	RefreshTokenTTL    time.Duration

	// ClockSkew is the leeway applied to exp, nbf and iat during validation.
	// Zero means a token is expired as soon as its TTL has passed.
	ClockSkew time.Duration

	// RevokeOnPasswordChange clears the stored refresh token when the
	// password changes, forcing every client to log in again.
	RevokeOnPasswordChange bool
}

// DefaultConfig returns the non-secret defaults. Secrets must still be set.
func DefaultConfig() Config {
	return Config{
		Issuer:                 "vidtube",
		AccessTokenTTL:         15 * time.Minute,
		RefreshTokenTTL:        10 * 24 * time.Hour,
		ClockSkew:              0,
		RevokeOnPasswordChange: true,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - ACCESS_TOKEN_SECRET_KEY
//   - ACCESS_TOKEN_EXPIRY   (Go duration or whole days, e.g. "15m", "1d")
//   - REFRESH_TOKEN_SECRET_KEY
//   - REFRESH_TOKEN_EXPIRY
//
// Optional:
//   - VIDTUBE_AUTH_ISSUER
//   - VIDTUBE_AUTH_CLOCK_SKEW
//   - VIDTUBE_AUTH_REVOKE_ON_PASSWORD_CHANGE
//
// Errors wrap ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.AccessTokenSecret = []byte(os.Getenv("ACCESS_TOKEN_SECRET_KEY"))
	cfg.RefreshTokenSecret = []byte(os.Getenv("REFRESH_TOKEN_SECRET_KEY"))

	d, err := requiredExpiry("ACCESS_TOKEN_EXPIRY")
	if err != nil {
		return Config{}, err
	}
	cfg.AccessTokenTTL = d

	d, err = requiredExpiry("REFRESH_TOKEN_EXPIRY")
	if err != nil {
		return Config{}, err
	}
	cfg.RefreshTokenTTL = d

	if v := strings.TrimSpace(os.Getenv("VIDTUBE_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := strings.TrimSpace(os.Getenv("VIDTUBE_AUTH_CLOCK_SKEW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("%w: VIDTUBE_AUTH_CLOCK_SKEW must be a non-negative duration", ErrConfig)
		}
		cfg.ClockSkew = d
	}

	if v := strings.TrimSpace(os.Getenv("VIDTUBE_AUTH_REVOKE_ON_PASSWORD_CHANGE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: VIDTUBE_AUTH_REVOKE_ON_PASSWORD_CHANGE must be a bool", ErrConfig)
		}
		cfg.RevokeOnPasswordChange = b
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants every token manager relies on.
func (c Config) Validate() error {
	switch {
	case len(c.AccessTokenSecret) == 0:
		return fmt.Errorf("%w: ACCESS_TOKEN_SECRET_KEY is required", ErrConfig)
	case len(c.RefreshTokenSecret) == 0:
		return fmt.Errorf("%w: REFRESH_TOKEN_SECRET_KEY is required", ErrConfig)
	case len(c.AccessTokenSecret) < minSecretBytes || len(c.RefreshTokenSecret) < minSecretBytes:
		return fmt.Errorf("%w: token secrets must be at least %d bytes", ErrConfig, minSecretBytes)
	case string(c.AccessTokenSecret) == string(c.RefreshTokenSecret):
		// Otherwise an access token would verify as a refresh token.
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	case c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0:
		return fmt.Errorf("%w: token expiry must be positive", ErrConfig)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	}
	return nil
}

func requiredExpiry(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrConfig, key)
	}
	d, err := ParseExpiry(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrConfig, key, err)
	}
	return d, nil
}

// ParseExpiry accepts Go durations ("15m", "240h") and whole days ("1d", "10d").
func ParseExpiry(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, ok := strings.CutSuffix(v, "d"); ok {
		days, err := strconv.ParseInt(n, 10, 64)
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid day count %q", v)
		}
		if days > maxExpiryDays {
			return 0, fmt.Errorf("day count %q out of range", v)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %q", v)
	}
	return d, nil
}
