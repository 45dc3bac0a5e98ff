package models

import (
	"time"
)

// Session is the single client-side authentication state.
// At most one session exists at any time: it is created by login or refresh,
// replaced whole on every successful refresh and destroyed on logout,
// on restore detecting expiry or on refresh failure.
type Session struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsValid reports whether the session is still usable at the given moment
func (s Session) IsValid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// TokenResponse is the wire entity returned by the backend auth endpoints
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
	UserID       string `json:"userID"`
}

// NewSession converts a token response into a session.
// Pure: the caller injects "now", so expiry math is testable without a clock.
func NewSession(r TokenResponse, now time.Time) Session {
	return Session{
		UserID:       r.UserID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}
