package middleware

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/davidwehrlin/tag-master/internal/limiter"
)

// CORS allows the configured origins with credentials and exposes the
// request id and rate limit headers to browser clients.
func CORS(origins []string) func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodOptions,
		}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "Accept", "Origin"}),
		handlers.ExposedHeaders([]string{
			HeaderRequestID,
			limiter.HeaderLimit,
			limiter.HeaderRemaining,
			limiter.HeaderReset,
			"Retry-After",
		}),
	)
}
