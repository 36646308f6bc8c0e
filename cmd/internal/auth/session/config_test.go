package session

import (
	"errors"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET_KEY", "access-secret-0123456789abcdefghij")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "15m")
	t.Setenv("REFRESH_TOKEN_SECRET_KEY", "refresh-secret-0123456789abcdefghij")
	t.Setenv("REFRESH_TOKEN_EXPIRY", "10d")
}

func TestLoadConfigFromEnv_MissingSecrets(t *testing.T) {
	for _, key := range []string{"ACCESS_TOKEN_SECRET_KEY", "REFRESH_TOKEN_SECRET_KEY", "ACCESS_TOKEN_EXPIRY", "REFRESH_TOKEN_EXPIRY"} {
		t.Run(key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(key, "")
			_, err := LoadConfigFromEnv()
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig when %s is missing, got %v", key, err)
			}
		})
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_EXPIRY", "-5m")
	_, err := LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}

	t.Setenv("ACCESS_TOKEN_EXPIRY", "0d")
	_, err = LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for zero days, got %v", err)
	}
}

func TestLoadConfigFromEnv_SameSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REFRESH_TOKEN_SECRET_KEY", "access-secret-0123456789abcdefghij")
	_, err := LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for identical secrets, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_SECRET_KEY", "short")
	_, err := LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for short secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_SecretOneByteShort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_SECRET_KEY", "0123456789abcdef0123456789abcde")
	_, err := LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a 31-byte secret, got %v", err)
	}

	t.Setenv("ACCESS_TOKEN_SECRET_KEY", "0123456789abcdef0123456789abcdef")
	if _, err := LoadConfigFromEnv(); err != nil {
		t.Fatalf("32-byte secret rejected: %v", err)
	}
}

func TestLoadConfigFromEnv_DefaultsToNoClockSkew(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.ClockSkew != 0 {
		t.Fatalf("expected zero clock skew by default, got %v", cfg.ClockSkew)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VIDTUBE_AUTH_ISSUER", "vidtube-test")
	t.Setenv("VIDTUBE_AUTH_CLOCK_SKEW", "20s")
	t.Setenv("VIDTUBE_AUTH_REVOKE_ON_PASSWORD_CHANGE", "false")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "vidtube-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("access ttl mismatch: %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 240*time.Hour {
		t.Fatalf("refresh ttl mismatch: %v", cfg.RefreshTokenTTL)
	}
	if cfg.ClockSkew != 20*time.Second {
		t.Fatalf("clock skew mismatch: %v", cfg.ClockSkew)
	}
	if cfg.RevokeOnPasswordChange {
		t.Fatalf("expected revoke on password change to be disabled")
	}
}

func TestParseExpiry(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "1d", want: 24 * time.Hour},
		{in: " 10d ", want: 240 * time.Hour},
		{in: "90m", want: 90 * time.Minute},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "d", wantErr: true},
		{in: "-1d", wantErr: true},
		{in: "0s", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "106751d", want: 106751 * 24 * time.Hour},
		{in: "106752d", wantErr: true},
		{in: "200000d", wantErr: true},
		{in: "300000d", wantErr: true},
		{in: "99999999999999999999d", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseExpiry(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseExpiry(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseExpiry(%q)=%v,%v want %v", tc.in, got, err, tc.want)
		}
	}
}
