package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards the operator API with a shared key. The key may be sent as a
// Bearer token, in X-API-Key, or as ?token= for browser websocket clients.
// Paths in public are always open. An empty apiKey disables the check.
func Auth(apiKey string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			switch got := requestKey(r); {
			case got == "":
				writeUnauthorized(w, "missing api key")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				writeUnauthorized(w, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func requestKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	// Query tokens are only accepted for the websocket handshake.
	if r.URL.Path == "/ws" {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="liquidbot"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
