package http

import (
	"net/http"
	"strings"
)

// The API serves JSON only, so scripts and embedding are locked down
// everywhere except the Swagger UI, which needs inline assets to render.
const (
	cspAPI     = "default-src 'none'"
	cspSwagger = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:"
)

// SecurityHeaders sets baseline security headers on every response
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if strings.HasPrefix(r.URL.Path, "/swagger/") {
			w.Header().Set("Content-Security-Policy", cspSwagger)
		} else {
			w.Header().Set("Content-Security-Policy", cspAPI)
		}

		next.ServeHTTP(w, r)
	})
}
