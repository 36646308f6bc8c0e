package authapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"vidtube/cmd/internal/auth/session"
)

func (h *Handler) setSessionCookies(w http.ResponseWriter, s session.Session, now time.Time) {
	h.setCookie(w, h.cfg.AccessCookieName, s.AccessToken, s.AccessExp, now)
	h.setCookie(w, h.cfg.RefreshCookieName, s.RefreshToken, s.RefreshExp, now)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.expireCookie(w, h.cfg.AccessCookieName)
	h.expireCookie(w, h.cfg.RefreshCookieName)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		MaxAge:   cookieMaxAge(exp, now),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// accessToken prefers the access cookie and falls back to a bearer header.
func (h *Handler) accessToken(r *http.Request) string {
	if v := cookieValue(r, h.cfg.AccessCookieName); v != "" {
		return v
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
