package handlers

import (
	"errors"
	"net"
	"net/http"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/backend/issuer"
	"github.com/avoronova/sessionkit/internal/backend/render"
	"github.com/avoronova/sessionkit/internal/logger"
)

// tokenResponse is the wire shape of a token pair, shared by login and
// refresh. Field names match what the client transport decodes.
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
	UserID       string `json:"userID"`
}

func newTokenResponse(pair issuer.Pair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenType:    pair.TokenType,
		UserID:       pair.UserID.String(),
	}
}

func handleRegister(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Email           string `json:"email" validate:"required,email"`
		Password        string `json:"password" validate:"required,min=8"`
		ConfirmPassword string `json:"confirmPassword" validate:"required"`
	}
	type response struct {
		UserID string `json:"userID"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}
		if data.Password != data.ConfirmPassword {
			render.ServiceError(w, "Passwords do not match", http.StatusBadRequest)
			return
		}

		user, err := auth.Register(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				l.Error("Registration failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, response{UserID: user.ID.String()}, http.StatusCreated)
	})
}

func handleLogin(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := auth.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRateLimited):
				render.RateLimited(w, auth.LoginRetryAfter(data.Email))
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				l.Error("Login failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, newTokenResponse(pair))
	})
}

func handleTokenRefresh(auth authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		origin := requestOrigin(r)
		pair, err := auth.Refresh(r.Context(), data.RefreshToken, origin)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRateLimited):
				render.RateLimited(w, auth.RefreshRetryAfter(origin))
			case errors.Is(err, apperrors.ErrRefreshTokenReused):
				render.ServiceError(w, "Refresh token already used", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrRefreshTokenExpired):
				render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrRefreshFailed):
				render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			default:
				l.Error("Refresh failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, newTokenResponse(pair))
	})
}

func handleLogout(auth authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := auth.Logout(r.Context(), data.RefreshToken); err != nil {
			l.Error("Logout failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Message: "Logged out"})
	})
}

func handleForgotPassword(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, err := auth.StartPasswordReset(r.Context(), data.Email)
		if err != nil {
			l.Error("Password reset could not be started", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// There is no mail delivery here. The token lands in the server
		// log so the operator can relay it during development.
		if token != "" {
			l.Info("Password reset token issued", "email", data.Email, "token", token)
		}

		// Same response whether the address is known or not
		render.JSON(w, response{Message: "If the address is registered, reset instructions were sent"})
	})
}

func handleResetPassword(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := auth.CompletePasswordReset(r.Context(), data.Token, data.NewPassword); err != nil {
			render.ServiceError(w, "Invalid or expired reset token", http.StatusBadRequest)
			return
		}

		render.JSON(w, response{Message: "Password updated"})
	})
}

// requestOrigin reduces the remote address to its host part so refresh
// throttling buckets by client, not by ephemeral port.
func requestOrigin(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
