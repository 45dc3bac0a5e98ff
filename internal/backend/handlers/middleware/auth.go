package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/avoronova/sessionkit/internal/backend/handlers/userctx"
	"github.com/avoronova/sessionkit/internal/backend/models"
	"github.com/avoronova/sessionkit/internal/backend/render"
)

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (models.User, error)
}

// AuthMiddleware rejects requests without a valid bearer access token
// and stores the resolved user in the request context.
func AuthMiddleware(auth authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
