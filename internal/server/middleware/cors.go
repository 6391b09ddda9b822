package middleware

import (
	"net/http"
	"strings"
)

// CORS answers browser preflights for the dashboard origins. An empty list
// or a "*" entry allows any origin. Preflights from other origins get 403.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			permitted := origin != "" && (allowAll || origins[strings.ToLower(origin)])
			if permitted {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
				h.Set("Access-Control-Expose-Headers", requestIDHeader)
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				if origin != "" && !permitted {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
