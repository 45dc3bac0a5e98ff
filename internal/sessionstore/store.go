package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/models"
	"github.com/avoronova/sessionkit/internal/securestore"
)

const sessionKey = "sessionkit.session"

// Store is the single-slot register holding the current session.
// It is the one source of truth for "am I logged in": all reads and writes
// are serialized so no caller can observe a partially written session.
//
// Errors from the underlying secret store surface as
// apperrors.ErrStoreUnavailable, which is distinct from apperrors.ErrNoSession.
type Store struct {
	mu      sync.Mutex
	secrets securestore.SecretStore
}

func New(secrets securestore.SecretStore) *Store {
	return &Store{secrets: secrets}
}

// Get returns the current session.
// Returns apperrors.ErrNoSession when nothing is stored and
// apperrors.ErrStoreUnavailable when the secret store cannot be read.
func (s *Store) Get(ctx context.Context) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(ctx)
}

// Put replaces the stored session with the given one
func (s *Store) Put(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.secrets.Set(ctx, sessionKey, data); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.secrets.Delete(ctx, sessionKey); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

// GetAndClearExpired returns the current session, clearing it first when it
// already expired at the given moment. Both the read and the conditional
// clear happen under one lock, so concurrent callers can't resurrect an
// expired session in between.
func (s *Store) GetAndClearExpired(ctx context.Context, now time.Time) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.get(ctx)
	if err != nil {
		return models.Session{}, err
	}

	if !session.IsValid(now) {
		if err := s.secrets.Delete(ctx, sessionKey); err != nil {
			return models.Session{}, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
		}
		return models.Session{}, apperrors.ErrNoSession
	}

	return session, nil
}

func (s *Store) get(ctx context.Context) (models.Session, error) {
	var session models.Session

	data, err := s.secrets.Get(ctx, sessionKey)
	switch {
	case errors.Is(err, securestore.ErrSecretNotFound):
		return session, apperrors.ErrNoSession
	case err != nil:
		return session, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}

	if err := json.Unmarshal(data, &session); err != nil {
		return session, fmt.Errorf("%w: decode session: %w", apperrors.ErrStoreUnavailable, err)
	}
	return session, nil
}
