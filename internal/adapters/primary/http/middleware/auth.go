package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/logging"
)

// JWTMiddleware validates the bearer token from the Authorization header and
// stores the resolved user id in the request context.
func JWTMiddleware(tokens ports.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Authorization header is required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeUnauthorized(w, "Authorization header format must be Bearer {token}")
				return
			}

			userID, err := tokens.ValidateUserToken(strings.TrimSpace(parts[1]))
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := logging.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the user id stored by JWTMiddleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(logging.UserIDKey).(string)
	return userID, ok && userID != ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeAppError(w, apperrors.NewUnauthorizedError(message))
}

// writeAppError renders err in the same shape as the HTTP error handler.
func writeAppError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Message,
		"code":  err.Code,
	})
}
