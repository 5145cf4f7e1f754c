package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	stderrors "errors"

	pkgerrors "github.com/stellaide/server/pkg/errors"
)

type contextKey string

const subjectKey contextKey = "subject"

// SubjectFromContext returns the identity the middleware resolved from the
// access token.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok
}

// BearerToken extracts the access token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", pkgerrors.ErrInvalidAccessToken
	}
	return strings.TrimPrefix(header, "Bearer "), nil
}

// Middleware guards routes with a strict access-token check: any parse
// failure, expiry included, rejects the request.
func Middleware(provider *Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := BearerToken(r)
			if err != nil {
				writeAuthError(w, pkgerrors.From(err))
				return
			}

			claims, err := provider.ParseAccess(tokenString)
			if err != nil {
				slog.Warn("access token rejected", "path", r.URL.Path, "error", err)
				if stderrors.Is(err, pkgerrors.ErrExpiredAccessToken) {
					writeAuthError(w, pkgerrors.ErrExpiredAccessToken)
					return
				}
				writeAuthError(w, pkgerrors.ErrAuthentication)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, e *pkgerrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(e)
}
