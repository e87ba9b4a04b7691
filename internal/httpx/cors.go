package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists the origins allowed to call the API from a browser. The
// API only uses GET and POST with JSON or multipart bodies, so methods and
// headers are fixed.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS emits CORS headers for matching origins and short-circuits
// preflight requests. An empty origin list disables it entirely.
func WithCORS(policy CORSPolicy) Middleware {
	var origins []string
	for _, o := range policy.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := allowedOrigin(origin, origins, policy.AllowCredentials)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
			if policy.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if secs := int(policy.MaxAge.Seconds()); secs > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(secs))
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigin(origin string, allowed []string, credentials bool) (string, bool) {
	for _, candidate := range allowed {
		if candidate == "*" {
			if credentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	return "", false
}
