package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/logger"
	"github.com/avoronova/sessionkit/internal/models"
)

const defaultRequestTimeout = 10 * time.Second

// RateLimitError wraps apperrors.ErrRateLimited with the backoff hint
// the backend returned in the Retry-After header
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return apperrors.ErrRateLimited
}

// Client talks to the backend auth endpoints.
// It is stateless per call: no token state lives here, only address,
// timeout and the underlying http client.
type Client struct {
	BaseURL string

	client  *http.Client
	timeout time.Duration
	logger  logger.Logger
}

func NewClient(baseURL string, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: defaultRequestTimeout,
		logger:  log,
	}
}

// Login exchanges credentials for a fresh token pair.
// 401 maps to apperrors.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, username string, password string) (models.TokenResponse, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: username, Password: password}

	var resp models.TokenResponse
	err := c.post(ctx, "/auth/login", body, &resp, map[int]error{
		http.StatusUnauthorized: apperrors.ErrInvalidCredentials,
	})
	return resp, err
}

// Refresh exchanges the refresh token for a rotated token pair.
// 401 means the token was invalid, expired or already rotated and maps
// to apperrors.ErrRefreshFailed.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenResponse, error) {
	body := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	var resp models.TokenResponse
	err := c.post(ctx, "/auth/refresh", body, &resp, map[int]error{
		http.StatusUnauthorized: apperrors.ErrRefreshFailed,
	})
	return resp, err
}

// Logout asks the backend to invalidate the session record.
// Callers treat failures as best-effort, the method only reports them.
func (c *Client) Logout(ctx context.Context, accessToken string, refreshToken string) error {
	body := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	req, err := c.newRequest(ctx, "/auth/logout", body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.do(req, nil, nil)
}

// Register creates a new account and returns the new user id
func (c *Client) Register(ctx context.Context, username string, password string, confirmPassword string) (string, error) {
	body := struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}{Email: username, Password: password, ConfirmPassword: confirmPassword}

	var resp struct {
		UserID string `json:"userID"`
	}
	err := c.post(ctx, "/auth/register", body, &resp, map[int]error{
		http.StatusConflict: apperrors.ErrUserAlreadyExists,
	})
	return resp.UserID, err
}

// ForgotPassword starts a password reset for the given address
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := struct {
		Email string `json:"email"`
	}{Email: email}

	return c.post(ctx, "/auth/forgot-password", body, nil, nil)
}

// ResetPassword completes a password reset with the emailed token
func (c *Client) ResetPassword(ctx context.Context, token string, newPassword string) error {
	body := struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}{Token: token, NewPassword: newPassword}

	return c.post(ctx, "/auth/reset-password", body, nil, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any, statusErrs map[int]error) error {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}
	return c.do(req, out, statusErrs)
}

func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// do sends the request with a bounded timeout and maps the response status
// to the error taxonomy. statusErrs lets each endpoint override the mapping
// for statuses it gives a specific meaning.
func (c *Client) do(req *http.Request, out any, statusErrs map[int]error) error {
	ctx, cancel := context.WithTimeout(req.Context(), c.timeout)
	defer cancel()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if mapped, ok := statusErrs[resp.StatusCode]; ok {
		return mapped
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.logger.Warn("Failed to decode response", "path", req.URL.Path, "error", err)
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return c.rateLimited(resp)

	default:
		c.logger.Warn("Unexpected status from auth backend", "path", req.URL.Path, "status_code", resp.StatusCode)
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, req.URL.Path)
	}
}

func (c *Client) rateLimited(resp *http.Response) error {
	header := resp.Header.Get("Retry-After")
	retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		retryAfter = 60 // default to 60 seconds if the header is missing or junk
	}

	c.logger.Warn("Auth backend throttled the request", "retry_after", retryAfter)
	return &RateLimitError{RetryAfter: time.Duration(retryAfter) * time.Second}
}
