package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSConfig struct {
	// AllowOrigins lists exact origins; "*" admits any.
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	// MaxAge is how long, in seconds, browsers may cache a preflight.
	MaxAge int
}

// DefaultCORSConfig admits any origin; it suits local development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "X-API-Key", RequestIDHeader},
		MaxAge:       86400,
	}
}

// CORS echoes an admitted Origin back and answers preflight requests
// without reaching next. Requests from other origins pass through
// untouched and the browser blocks them.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	anyOrigin := false
	origins := make(map[string]struct{}, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			anyOrigin = true
		}
		origins[o] = struct{}{}
	}
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if _, listed := origins[origin]; origin == "" || (!anyOrigin && !listed) {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
