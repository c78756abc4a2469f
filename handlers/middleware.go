package handlers

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// RequireAdmin guards mutating routes with a bearer token compared against a
// bcrypt hash. With an empty hash every request is let through.
func RequireAdmin(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokenHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized, APIErrorResponse{Error: "authorization header required", Code: "unauthorized"})
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeJSON(w, http.StatusUnauthorized, APIErrorResponse{Error: "authorization header format must be Bearer {token}", Code: "unauthorized"})
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(parts[1])); err != nil {
				writeJSON(w, http.StatusUnauthorized, APIErrorResponse{Error: "invalid token", Code: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit allows perMinute requests per minute with an equal burst. Every
// route wrapped by the returned middleware draws from the same bucket. Zero
// disables the limit.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, APIErrorResponse{Error: "too many uploads, slow down", Code: "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
