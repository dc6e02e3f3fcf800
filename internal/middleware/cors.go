// Package middleware provides HTTP middleware for the AIcare API.
package middleware

import (
	"net/http"
	"strings"
)

// CORSOptions configures CORS.
type CORSOptions struct {
	AllowedOrigins []string
	AllowedHeaders []string
}

// DefaultCORSOptions allows any origin and the identity headers.
func DefaultCORSOptions() CORSOptions {
	return CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"Content-Type", "X-User-ID", "X-AIcare-Session-ID"},
	}
}

// CORS returns middleware that handles CORS headers.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = DefaultCORSOptions().AllowedHeaders
	}
	allowHeaders := strings.Join(opts.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed, explicit := false, false
			for _, o := range opts.AllowedOrigins {
				if o == "*" {
					allowed = true
				}
				if o != "*" && o == origin {
					allowed, explicit = true, true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				w.Header().Add("Vary", "Origin")
				// Credentials only for explicitly listed origins; echoing a
				// wildcard origin with credentials enables CSRF.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
