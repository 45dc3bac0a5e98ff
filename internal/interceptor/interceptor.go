package interceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/logger"
	"github.com/avoronova/sessionkit/internal/models"
)

// refreshKey is the single-flight key: there is only ever one logical
// refresh operation, so every concurrent 401 shares the same one
const refreshKey = "refresh"

// SessionReader is the part of the session store the interceptor needs
type SessionReader interface {
	Get(ctx context.Context) (models.Session, error)
}

// Refresher rotates the session. The session service implements it with
// clear-on-failure semantics, so a failed refresh leaves an empty store.
type Refresher interface {
	Refresh(ctx context.Context) (models.Session, error)
}

// Transport is an http.RoundTripper that makes protected calls survive
// access token expiry. Per request:
//
//	adapt with stored token -> send -> 2xx/3xx done
//	                                -> 401: join the shared refresh, retry once
//	                                -> anything else passes through untouched
//
// However many requests observe a 401 at the same time, the refresh
// endpoint is called exactly once per cycle; all waiters share the outcome.
// Requests sent without a stored session are never intercepted: their 401
// reaches the caller untouched.
type Transport struct {
	base      http.RoundTripper
	store     SessionReader
	refresher Refresher
	group     singleflight.Group
	logger    logger.Logger
}

func New(base http.RoundTripper, store SessionReader, refresher Refresher, log logger.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Transport{
		base:      base,
		store:     store,
		refresher: refresher,
		logger:    log,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	adapted, hasSession := t.adapt(req)

	resp, err := t.base.RoundTrip(adapted)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// With no session there is nothing to renew: the 401 belongs to the
	// caller, not to the refresh machinery
	if !hasSession {
		return resp, nil
	}

	// A retry needs a replayable body. Without GetBody the original stream
	// is already consumed, so hand the 401 back to the caller as is.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	session, err := t.awaitRefresh(req.Context())
	if err != nil {
		// The session can vanish between adapt and refresh (a concurrent
		// logout, or a shared refresh that already failed and cleared the
		// store). Same story as no session at all: the 401 stands.
		if errors.Is(err, apperrors.ErrNoRefreshToken) {
			return resp, nil
		}
		drainAndClose(resp.Body)
		return nil, err
	}

	drainAndClose(resp.Body)

	retry, err := t.cloneForRetry(req, session.AccessToken)
	if err != nil {
		return nil, err
	}

	// Exactly one retry; whatever it returns is the caller's result
	return t.base.RoundTrip(retry)
}

// adapt returns a copy of the request carrying the stored access token and
// whether a session was found. With no session the request goes out
// unmodified and its 401, if any, is the caller's to handle.
func (t *Transport) adapt(req *http.Request) (*http.Request, bool) {
	session, err := t.store.Get(req.Context())
	if err != nil {
		return req, false
	}

	adapted := req.Clone(req.Context())
	adapted.Header.Set("Authorization", "Bearer "+session.AccessToken)
	return adapted, true
}

// awaitRefresh joins the in-flight refresh, starting one if none is
// running. "Is one running" and "start one" are atomic inside the
// single-flight group, so concurrent 401s can never double-fire.
//
// The refresh runs detached from any single caller: cancelling the request
// that happened to start it must not starve the other waiters. A cancelled
// caller only abandons its own retry.
func (t *Transport) awaitRefresh(ctx context.Context) (models.Session, error) {
	ch := t.group.DoChan(refreshKey, func() (any, error) {
		t.logger.Debug("Got 401, refreshing session")
		return t.refresher.Refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return models.Session{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.Session{}, res.Err
		}
		return res.Val.(models.Session), nil
	}
}

func (t *Transport) cloneForRetry(req *http.Request, accessToken string) (*http.Request, error) {
	retry := req.Clone(req.Context())
	retry.Header.Set("Authorization", "Bearer "+accessToken)

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}

	return retry, nil
}

// drainAndClose lets the connection be reused by the retry
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
