package app

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

func registerHTTP(mux *http.ServeMux, a *App) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && !a.dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if a.dbEnabled && a.dbPool != nil {
			if err := PingDB(r.Context(), a.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				a.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	if a.mediaDir != "" && a.mediaPath != "" {
		fs := http.StripPrefix(a.mediaPath, http.FileServer(http.Dir(a.mediaDir)))
		mux.Handle("GET "+a.mediaPath+"/", noDirListing(fs))
	}

	a.auth.Register(mux)
}

// mediaMountPath is the URL path of a local public base URL, or "" when
// it is the site root (serving media there would shadow every route).
func mediaMountPath(publicBaseURL string) string {
	u, err := url.Parse(publicBaseURL)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return p
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
