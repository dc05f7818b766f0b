package api

import (
	"net/http"
)

// corsMiddleware handles CORS for browser clients. Requests without an
// Origin header (CLI, native apps) pass through untouched. A browser
// preflight from an origin not on the allow-list is refused with 403.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed := false
		for _, o := range s.config.CORSAllowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if !allowed {
			if r.Method == http.MethodOptions {
				writeError(w, http.StatusForbidden, ErrCodeForbiddenOrigin, "origin not allowed")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
