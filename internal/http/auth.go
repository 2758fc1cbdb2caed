package httpapi

import (
	"context"
	"net/http"
	"strings"

	"linova-go/internal/services"
)

type contextKey string

const (
	ctxUserID contextKey = "userID"
	ctxEmail  contextKey = "email"
)

func WithAuth(tokenService services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			claims, err := tokenService.ParseAccess(tokenStr)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// WithOptionalAuth lets anonymous requests through but still rejects a
// bad token.
func WithOptionalAuth(tokenService services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := tokenService.ParseAccess(tokenStr)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}

func withClaims(ctx context.Context, claims services.AccessClaims) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, claims.UserID)
	return context.WithValue(ctx, ctxEmail, claims.Email)
}

func CurrentUserID(r *http.Request) string {
	if value, ok := r.Context().Value(ctxUserID).(string); ok {
		return value
	}
	return ""
}

func CurrentEmail(r *http.Request) string {
	if value, ok := r.Context().Value(ctxEmail).(string); ok {
		return value
	}
	return ""
}
