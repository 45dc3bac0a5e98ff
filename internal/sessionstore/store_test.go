package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/models"
	"github.com/avoronova/sessionkit/internal/securestore"
)

// brokenSecrets fails every operation, simulating an unavailable secret store
type brokenSecrets struct{}

func (brokenSecrets) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("keychain locked")
}

func (brokenSecrets) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("keychain locked")
}

func (brokenSecrets) Delete(ctx context.Context, key string) error {
	return errors.New("keychain locked")
}

func testSession(expiresAt time.Time) models.Session {
	return models.Session{
		UserID:       "user-1",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expiresAt,
	}
}

func Test_Store(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("get on empty store", func(t *testing.T) {
		s := New(securestore.NewMemoryStore())

		_, err := s.Get(t.Context())
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("put then get", func(t *testing.T) {
		s := New(securestore.NewMemoryStore())
		session := testSession(now.Add(time.Hour))

		require.NoError(t, s.Put(t.Context(), session))

		got, err := s.Get(t.Context())
		require.NoError(t, err)
		require.Equal(t, session.UserID, got.UserID)
		require.Equal(t, session.AccessToken, got.AccessToken)
		require.Equal(t, session.RefreshToken, got.RefreshToken)
		require.True(t, session.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("put replaces previous session", func(t *testing.T) {
		s := New(securestore.NewMemoryStore())

		require.NoError(t, s.Put(t.Context(), testSession(now)))

		second := testSession(now.Add(time.Hour))
		second.AccessToken = "rotated-access"
		require.NoError(t, s.Put(t.Context(), second))

		got, err := s.Get(t.Context())
		require.NoError(t, err)
		require.Equal(t, "rotated-access", got.AccessToken)
	})

	t.Run("clear removes session", func(t *testing.T) {
		s := New(securestore.NewMemoryStore())
		require.NoError(t, s.Put(t.Context(), testSession(now.Add(time.Hour))))

		require.NoError(t, s.Clear(t.Context()))

		_, err := s.Get(t.Context())
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("clear on empty store is no-op", func(t *testing.T) {
		s := New(securestore.NewMemoryStore())
		require.NoError(t, s.Clear(t.Context()))
	})

	t.Run("unavailable secret store is not treated as no session", func(t *testing.T) {
		s := New(brokenSecrets{})

		_, err := s.Get(t.Context())
		require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
		require.NotErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("get and clear expired", func(t *testing.T) {
		s := New(securestore.NewMemoryStore())
		require.NoError(t, s.Put(t.Context(), testSession(now.Add(-time.Second))))

		_, err := s.GetAndClearExpired(t.Context(), now)
		require.ErrorIs(t, err, apperrors.ErrNoSession)

		// The expired session must be gone after the check
		_, err = s.Get(t.Context())
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("get and clear keeps valid session", func(t *testing.T) {
		s := New(securestore.NewMemoryStore())
		require.NoError(t, s.Put(t.Context(), testSession(now.Add(time.Minute))))

		got, err := s.GetAndClearExpired(t.Context(), now)
		require.NoError(t, err)
		require.Equal(t, "user-1", got.UserID)
	})
}

// Concurrent puts and gets must never expose a torn session: every read
// observes a complete token pair from a single write.
func Test_Store_Serialized(t *testing.T) {
	t.Parallel()

	s := New(securestore.NewMemoryStore())
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)

		go func(n int) {
			defer wg.Done()
			session := testSession(now.Add(time.Hour))
			session.AccessToken = fmt.Sprintf("token-%d", n)
			session.RefreshToken = fmt.Sprintf("token-%d", n)
			_ = s.Put(context.Background(), session)
		}(i)

		go func() {
			defer wg.Done()
			got, err := s.Get(context.Background())
			if err != nil {
				return
			}
			require.Equal(t, got.AccessToken, got.RefreshToken, "session read must be all-or-nothing")
		}()
	}
	wg.Wait()
}
