package guard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/models"
	"github.com/avoronova/sessionkit/internal/securestore"
	"github.com/avoronova/sessionkit/internal/sessionstore"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newGuard(t *testing.T) (*Guard, *sessionstore.Store) {
	t.Helper()

	store := sessionstore.New(securestore.NewMemoryStore())
	g := New(store, nil, func() time.Time { return testNow })
	return g, store
}

func putSession(t *testing.T, store *sessionstore.Store, expiresAt time.Time) {
	t.Helper()

	err := store.Put(t.Context(), models.Session{
		UserID:       "user-1",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expiresAt,
	})
	require.NoError(t, err)
}

func Test_CanAccess(t *testing.T) {
	t.Parallel()

	t.Run("public routes always allowed", func(t *testing.T) {
		g, _ := newGuard(t)

		for _, route := range []string{"login", "signup", "forgot-password"} {
			decision := g.CanAccess(t.Context(), route)
			assert.True(t, decision.Allowed, "route %q must be public", route)
		}
	})

	t.Run("public routes never read the store", func(t *testing.T) {
		store := &countingStore{err: errors.New("must not be called")}
		g := New(store, nil, func() time.Time { return testNow })

		decision := g.CanAccess(t.Context(), "login")

		assert.True(t, decision.Allowed)
		assert.Equal(t, int64(0), store.reads.Load())
	})

	t.Run("protected route without session denied", func(t *testing.T) {
		g, _ := newGuard(t)

		decision := g.CanAccess(t.Context(), "dashboard")

		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonUnauthenticated, decision.Reason)
	})

	t.Run("protected route with live session allowed", func(t *testing.T) {
		g, store := newGuard(t)
		putSession(t, store, testNow.Add(time.Hour))

		decision := g.CanAccess(t.Context(), "dashboard")

		assert.True(t, decision.Allowed)
	})

	t.Run("expired session denied and cleared", func(t *testing.T) {
		g, store := newGuard(t)
		putSession(t, store, testNow.Add(-time.Second))

		decision := g.CanAccess(t.Context(), "dashboard")

		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonUnauthenticated, decision.Reason)

		_, err := store.Get(t.Context())
		require.ErrorIs(t, err, apperrors.ErrNoSession, "expired session must be cleared by the check")
	})

	t.Run("store error fails closed", func(t *testing.T) {
		store := &countingStore{err: apperrors.ErrStoreUnavailable}
		g := New(store, nil, func() time.Time { return testNow })

		decision := g.CanAccess(t.Context(), "dashboard")

		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonUnauthenticated, decision.Reason)
	})
}

type countingStore struct {
	reads atomic.Int64
	err   error
}

func (s *countingStore) GetAndClearExpired(ctx context.Context, now time.Time) (models.Session, error) {
	s.reads.Add(1)
	return models.Session{}, s.err
}
