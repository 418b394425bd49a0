package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pliu/chatcore/internal/auth"
	"github.com/pliu/chatcore/internal/respond"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// AuthMiddleware resolves the bearer credential into an account id. Browsers
// cannot set headers on websocket upgrades, so the access_token query
// parameter is accepted as well.
func AuthMiddleware(resolver auth.Resolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := resolver.Resolve(r.Context(), bearerToken(r))
			if err != nil {
				respond.Error(w, r, log, err)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return r.URL.Query().Get("access_token")
}

// UserID returns the account id set by AuthMiddleware, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}
