// Package integration wires the whole client stack against a real backend
// served over httptest: transport client, session store, session service
// and the refreshing round tripper on one side, the production router,
// auth service and in-memory storage on the other.
package integration

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/backend/auth"
	"github.com/avoronova/sessionkit/internal/backend/handlers"
	"github.com/avoronova/sessionkit/internal/backend/issuer"
	"github.com/avoronova/sessionkit/internal/backend/repository/memory"
	"github.com/avoronova/sessionkit/internal/interceptor"
	"github.com/avoronova/sessionkit/internal/logger"
	"github.com/avoronova/sessionkit/internal/models"
	"github.com/avoronova/sessionkit/internal/securestore"
	"github.com/avoronova/sessionkit/internal/session"
	"github.com/avoronova/sessionkit/internal/sessionstore"
	"github.com/avoronova/sessionkit/internal/transport"
)

type env struct {
	backendURL   string
	refreshCalls *atomic.Int64

	store  *sessionstore.Store
	client *transport.Client
	svc    *session.Service
}

// startEnv runs the production backend and builds a fresh client stack
// against it. refreshCalls counts hits on the refresh endpoint.
func startEnv(t *testing.T) *env {
	t.Helper()

	iss, err := issuer.New(issuer.Config{SecretKey: "integration-secret"})
	require.NoError(t, err)
	service, err := auth.NewService(auth.Config{}, iss, memory.NewStorage())
	require.NoError(t, err)

	router := handlers.NewRouter(service, logger.NewNop())

	refreshCalls := &atomic.Int64{}
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshCalls.Add(1)
			// Keep the refresh in flight long enough that every 401 of
			// a concurrent burst joins it instead of starting its own
			time.Sleep(50 * time.Millisecond)
		}
		router.ServeHTTP(w, r)
	})

	srv := httptest.NewServer(counting)
	t.Cleanup(srv.Close)

	store := sessionstore.New(securestore.NewMemoryStore())
	client := transport.NewClient(srv.URL, logger.NewNop())
	svc, err := session.NewService(session.Config{}, store, client)
	require.NoError(t, err)

	return &env{
		backendURL:   srv.URL,
		refreshCalls: refreshCalls,
		store:        store,
		client:       client,
		svc:          svc,
	}
}

func (e *env) registerAndLogin(t *testing.T) models.Session {
	t.Helper()

	_, err := e.client.Register(t.Context(), "ava@example.com", "StrongEnough1", "StrongEnough1")
	require.NoError(t, err)

	sess, err := e.svc.Login(t.Context(), models.Credentials{
		Username: "ava@example.com",
		Password: "StrongEnough1",
	})
	require.NoError(t, err)
	return sess
}

// protectedClient routes requests through the refreshing transport
func (e *env) protectedClient() *http.Client {
	return &http.Client{
		Transport: interceptor.New(http.DefaultTransport, e.store, e.svc, logger.NewNop()),
	}
}

func (e *env) callMe(t *testing.T) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, e.backendURL+"/me", nil)
	require.NoError(t, err)

	resp, err := e.protectedClient().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// staleAccessToken overwrites the stored access token while keeping the
// refresh token intact, simulating access token expiry.
func (e *env) staleAccessToken(t *testing.T) {
	t.Helper()

	sess, err := e.store.Get(t.Context())
	require.NoError(t, err)
	sess.AccessToken = "stale-access-token"
	require.NoError(t, e.store.Put(t.Context(), sess))
}

func Test_LoginAndProtectedCall(t *testing.T) {
	t.Parallel()

	e := startEnv(t)
	sess := e.registerAndLogin(t)
	require.NotEmpty(t, sess.AccessToken)

	resp := e.callMe(t)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, e.refreshCalls.Load(), "fresh token must not trigger refresh")
}

func Test_StaleTokenRecovers(t *testing.T) {
	t.Parallel()

	e := startEnv(t)
	e.registerAndLogin(t)
	e.staleAccessToken(t)

	resp := e.callMe(t)

	require.Equal(t, http.StatusOK, resp.StatusCode, "call must succeed after transparent refresh")
	assert.EqualValues(t, 1, e.refreshCalls.Load(), "exactly one refresh expected")

	// The rotated session is persisted
	sess, err := e.store.Get(t.Context())
	require.NoError(t, err)
	assert.NotEqual(t, "stale-access-token", sess.AccessToken)
}

func Test_ConcurrentStaleCallsShareOneRefresh(t *testing.T) {
	t.Parallel()

	e := startEnv(t)
	e.registerAndLogin(t)
	e.staleAccessToken(t)

	const parallel = 8

	var wg sync.WaitGroup
	statuses := make([]int, parallel)
	client := e.protectedClient()

	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, e.backendURL+"/me", nil)
			if err != nil {
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close() //nolint:errcheck
			statuses[n] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i, status := range statuses {
		assert.Equalf(t, http.StatusOK, status, "request %d should have succeeded", i)
	}
	assert.EqualValues(t, 1, e.refreshCalls.Load(),
		"a burst of stale calls must share a single refresh")
}

func Test_RefreshTokenReuseKillsEverySession(t *testing.T) {
	t.Parallel()

	e := startEnv(t)
	sess := e.registerAndLogin(t)

	// Rotate once through the service, then replay the old token the way
	// an attacker who stole it would
	_, err := e.svc.Refresh(t.Context())
	require.NoError(t, err)

	_, err = e.client.Refresh(t.Context(), sess.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)

	// The legitimate rotated session is collateral damage: the backend
	// revoked everything, so the next refresh fails and clears the store
	_, err = e.svc.Refresh(t.Context())
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)

	_, err = e.store.Get(t.Context())
	require.ErrorIs(t, err, apperrors.ErrNoSession, "failed refresh must leave no session behind")
}

func Test_LogoutEndsTheSession(t *testing.T) {
	t.Parallel()

	e := startEnv(t)
	e.registerAndLogin(t)

	require.NoError(t, e.svc.Logout(t.Context()))

	_, err := e.store.Get(t.Context())
	require.ErrorIs(t, err, apperrors.ErrNoSession)

	resp := e.callMe(t)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode,
		"without a session the protected call passes through and fails")
}

func Test_RestoreAcrossRestarts(t *testing.T) {
	t.Parallel()

	e := startEnv(t)
	e.registerAndLogin(t)

	// A second service over the same store stands in for a new process
	restarted, err := session.NewService(session.Config{}, e.store, e.client)
	require.NoError(t, err)

	require.Equal(t, session.Authenticated, restarted.Restore(t.Context()))
}
