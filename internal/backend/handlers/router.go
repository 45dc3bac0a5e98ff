package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/avoronova/sessionkit/internal/backend/handlers/middleware"
	"github.com/avoronova/sessionkit/internal/backend/issuer"
	"github.com/avoronova/sessionkit/internal/backend/models"
	"github.com/avoronova/sessionkit/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(auth authService, l logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(auth)

	mux := http.NewServeMux()

	mux.Handle("POST /auth/register", handleRegister(auth, l))
	mux.Handle("POST /auth/login", handleLogin(auth, l))
	mux.Handle("POST /auth/refresh", handleTokenRefresh(auth, l))
	mux.Handle("POST /auth/logout", handleLogout(auth, l))
	mux.Handle("POST /auth/forgot-password", handleForgotPassword(auth, l))
	mux.Handle("POST /auth/reset-password", handleResetPassword(auth, l))

	mux.Handle("GET /me", withAuth(handleUserMe()))

	return chain(mux,
		middleware.LoggerMiddleware(l),
	)
}

type authService interface {
	// Register a new account.
	// Returns apperrors.ErrUserAlreadyExists on a duplicate email.
	Register(ctx context.Context, email string, password string) (models.User, error)

	// Login exchanges credentials for a token pair.
	// Returns apperrors.ErrInvalidCredentials or apperrors.ErrRateLimited.
	Login(ctx context.Context, email string, password string) (issuer.Pair, error)

	// Refresh rotates a token pair.
	// Returns apperrors.ErrRefreshFailed, ErrRefreshTokenExpired,
	// ErrRefreshTokenReused or ErrRateLimited.
	Refresh(ctx context.Context, refreshToken string, origin string) (issuer.Pair, error)

	// Logout invalidates the refresh token. Unknown tokens are fine.
	Logout(ctx context.Context, refreshToken string) error

	// Authenticate resolves an access token into its user
	Authenticate(ctx context.Context, accessToken string) (models.User, error)

	StartPasswordReset(ctx context.Context, email string) (string, error)
	CompletePasswordReset(ctx context.Context, token string, newPassword string) error

	LoginRetryAfter(email string) time.Duration
	RefreshRetryAfter(origin string) time.Duration
}
