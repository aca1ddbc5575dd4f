// Package auth provides API key authentication middleware.
package auth

import (
	"crypto/subtle"
	"net/http"
)

// HeaderName is the request header carrying the API key.
const HeaderName = "X-API-Key"

// APIKey returns middleware that rejects requests whose X-API-Key header does
// not match key. An empty key disables authentication, which is only sensible
// for local development.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderName)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid or missing API key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
