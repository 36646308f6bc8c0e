package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API transport behavior and security defaults.
type Config struct {
	TrustProxy bool

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
	// MaxUploadBytes caps a whole multipart request (all files plus fields).
	MaxUploadBytes int64
	// UploadTempDir is where multipart files are staged ("" means os.TempDir).
	UploadTempDir string

	AccessCookieName  string
	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	// TokensInBody also returns tokens in JSON for clients without cookies.
	TokensInBody bool
}

// DefaultConfig returns production-safe defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20,  // 1 MiB
		MaxUploadBytes:    10 << 20, // 10 MiB
		AccessCookieName:  "accessToken",
		RefreshCookieName: "refreshToken",
		CookiePath:        "/",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteLaxMode,
		TokensInBody:      true,
	}
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:        envBool("VIDTUBE_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("VIDTUBE_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		MaxUploadBytes:    envInt64("VIDTUBE_AUTH_MAX_UPLOAD_BYTES", def.MaxUploadBytes),
		UploadTempDir:     strings.TrimSpace(os.Getenv("VIDTUBE_AUTH_UPLOAD_TMP_DIR")),
		AccessCookieName:  envString("VIDTUBE_AUTH_ACCESS_COOKIE_NAME", def.AccessCookieName),
		RefreshCookieName: envString("VIDTUBE_AUTH_REFRESH_COOKIE_NAME", def.RefreshCookieName),
		CookiePath:        envString("VIDTUBE_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:      strings.TrimSpace(os.Getenv("VIDTUBE_AUTH_COOKIE_DOMAIN")),
		CookieSecure:      envBool("VIDTUBE_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:    parseSameSite(os.Getenv("VIDTUBE_AUTH_COOKIE_SAMESITE")),
		TokensInBody:      envBool("VIDTUBE_AUTH_TOKENS_IN_BODY", def.TokensInBody),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.AccessCookieName == cfg.RefreshCookieName {
		cfg.AccessCookieName = def.AccessCookieName
		cfg.RefreshCookieName = def.RefreshCookieName
	}
	if !strings.HasPrefix(cfg.CookiePath, "/") {
		cfg.CookiePath = "/"
	}

	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// cookieMaxAge converts an expiry into a Max-Age, never below one second.
func cookieMaxAge(exp, now time.Time) int {
	s := int(exp.Sub(now).Seconds())
	if s < 1 {
		return 1
	}
	return s
}
