package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/logger"
	"github.com/avoronova/sessionkit/internal/models"
)

func tokenResponse() models.TokenResponse {
	return models.TokenResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    900,
		TokenType:    "Bearer",
		UserID:       "user-1",
	}
}

func Test_ClientLogin(t *testing.T) {
	t.Parallel()

	t.Run("successful login decodes token response", func(t *testing.T) {
		var gotBody map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/auth/login", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			_ = json.NewEncoder(w).Encode(tokenResponse())
		}))
		defer srv.Close()

		c := NewClient(srv.URL, logger.NewNop())
		resp, err := c.Login(t.Context(), "user@example.com", "secret1")

		require.NoError(t, err)
		assert.Equal(t, "access-1", resp.AccessToken)
		assert.Equal(t, "refresh-1", resp.RefreshToken)
		assert.Equal(t, int64(900), resp.ExpiresIn)
		assert.Equal(t, "user@example.com", gotBody["email"])
		assert.Equal(t, "secret1", gotBody["password"])
	})

	t.Run("401 maps to invalid credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, logger.NewNop())
		_, err := c.Login(t.Context(), "user@example.com", "wrong-pass")

		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("429 maps to rate limited with retry hint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, logger.NewNop())
		_, err := c.Login(t.Context(), "user@example.com", "secret1")

		require.ErrorIs(t, err, apperrors.ErrRateLimited)
		require.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)

		var rl *RateLimitError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, 30*time.Second, rl.RetryAfter)
	})

	t.Run("connection failure maps to network unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // nobody listens anymore

		c := NewClient(srv.URL, logger.NewNop())
		_, err := c.Login(t.Context(), "user@example.com", "secret1")

		require.ErrorIs(t, err, apperrors.ErrNetworkUnreachable)
	})
}

func Test_ClientRefresh(t *testing.T) {
	t.Parallel()

	t.Run("successful refresh returns rotated pair", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/auth/refresh", r.URL.Path)

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "old-refresh", body["refreshToken"])

			resp := tokenResponse()
			resp.AccessToken = "access-2"
			resp.RefreshToken = "refresh-2"
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, logger.NewNop())
		resp, err := c.Refresh(t.Context(), "old-refresh")

		require.NoError(t, err)
		assert.Equal(t, "access-2", resp.AccessToken)
		assert.Equal(t, "refresh-2", resp.RefreshToken)
	})

	t.Run("401 maps to refresh failed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, logger.NewNop())
		_, err := c.Refresh(t.Context(), "rotated-already")

		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	})
}

func Test_ClientLogout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/logout", r.URL.Path)
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, logger.NewNop())
	err := c.Logout(t.Context(), "access-1", "refresh-1")

	require.NoError(t, err)
}

func Test_ClientRegister(t *testing.T) {
	t.Parallel()

	t.Run("register returns user id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/auth/register", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]string{"userID": "user-9"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, logger.NewNop())
		userID, err := c.Register(t.Context(), "new@example.com", "secret12", "secret12")

		require.NoError(t, err)
		assert.Equal(t, "user-9", userID)
	})

	t.Run("conflict maps to user already exists", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, logger.NewNop())
		_, err := c.Register(t.Context(), "taken@example.com", "secret12", "secret12")

		require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
	})
}
