package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const userIDContextKey contextKey = "userId"

// UserID returns the verified user id placed in the context by the
// identity middleware, or nil for anonymous callers.
func UserID(ctx context.Context) *string {
	if id, ok := ctx.Value(userIDContextKey).(string); ok && id != "" {
		return &id
	}
	return nil
}

// WithUserID is used by tests to simulate an authenticated request.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// IdentityMiddleware verifies an optional HS256 bearer assertion from the
// portal layer and exposes its subject as the caller's user id. A missing
// token means anonymous; a present-but-invalid token is rejected rather
// than silently downgraded.
type IdentityMiddleware struct {
	secret []byte
}

func NewIdentityMiddleware(secret string) *IdentityMiddleware {
	return &IdentityMiddleware{secret: []byte(secret)}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			log.Warn().Err(err).Msg("identity middleware: invalid bearer token")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid authentication token",
			})
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid authentication token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
