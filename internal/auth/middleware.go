package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/photo-share/internal/apperror"
)

// Middleware builds a RequestContext for every request and attaches it to
// the request context, where the GraphQL handler and resolvers find it.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	        // ... after ...
//	    })
//	}
//
// Unlike a classic RequireAuth, this never rejects anonymous callers. Only
// individual mutations demand a user, and they say so per field. The
// request fails here only when the user store cannot be reached.
func Middleware(b *Builder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, err := b.FromRequest(r)
			if err != nil {
				logger.Error("building request context",
					slog.String("error", err.Error()),
				)
				writeContextError(w, apperror.From(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), rc)))
		})
	}
}

// writeContextError replies in GraphQL's error shape since every route
// behind this middleware speaks GraphQL.
func writeContextError(w http.ResponseWriter, appErr *apperror.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{{
			"message":    appErr.Message,
			"extensions": appErr.Extensions(),
		}},
	})
}
