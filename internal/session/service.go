package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/logger"
	"github.com/avoronova/sessionkit/internal/models"
	"github.com/avoronova/sessionkit/internal/sessionstore"
)

// Status is the answer Restore gives at process start
type Status int

const (
	Unauthenticated Status = iota
	Authenticated
)

func (s Status) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// AuthClient is the part of the transport client the use cases need
type AuthClient interface {
	Login(ctx context.Context, username string, password string) (models.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (models.TokenResponse, error)
	Logout(ctx context.Context, accessToken string, refreshToken string) error
}

type Config struct {
	// Now returns the current time. Defaults to time.Now;
	// tests inject a fixed clock.
	Now func() time.Time

	Logger logger.Logger
}

// Service orchestrates the transport client and the session store.
// It owns the business rules of the token lifecycle: clear-on-refresh-failure,
// local-always logout and the restore expiry check.
type Service struct {
	store  *sessionstore.Store
	client AuthClient
	now    func() time.Time
	logger logger.Logger
}

func NewService(cfg Config, store *sessionstore.Store, client AuthClient) (*Service, error) {
	if store == nil || client == nil {
		return nil, errors.New("store and client must not be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Service{
		store:  store,
		client: client,
		now:    now,
		logger: log,
	}, nil
}

// Login exchanges credentials for a session and stores it.
// Credentials are expected to be pre-validated by the caller with the
// validate package; nothing is validated here so the network error mapping
// stays in one place.
func (s *Service) Login(ctx context.Context, creds models.Credentials) (models.Session, error) {
	resp, err := s.client.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return models.Session{}, err
	}

	session := models.NewSession(resp, s.now())
	if err := s.store.Put(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info("Logged in", "user_id", session.UserID)
	return session, nil
}

// Logout ends the session. Idempotent: with no session stored it does
// nothing and calls no network. A failing backend logout never blocks the
// local clear, the user must be able to log out while offline.
func (s *Service) Logout(ctx context.Context) error {
	session, err := s.store.Get(ctx)
	if errors.Is(err, apperrors.ErrNoSession) {
		return nil
	}

	if err == nil {
		if err := s.client.Logout(ctx, session.AccessToken, session.RefreshToken); err != nil {
			// Swallowed on purpose, but logged: the backend session record
			// stays alive until it expires on its own
			s.logger.Warn("Backend logout failed, clearing local session anyway", "error", err)
		}
	}

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	s.logger.Info("Logged out")
	return nil
}

// Refresh rotates the stored token pair.
// On any failure the store is cleared before the error is returned: a
// rejected refresh token may mean compromise or backend-side reuse
// invalidation, and presenting it again would make things worse.
func (s *Service) Refresh(ctx context.Context) (models.Session, error) {
	session, err := s.store.Get(ctx)
	switch {
	case errors.Is(err, apperrors.ErrNoSession):
		return models.Session{}, apperrors.ErrNoRefreshToken
	case err != nil:
		return models.Session{}, err
	}

	resp, err := s.client.Refresh(ctx, session.RefreshToken)
	if err != nil {
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			s.logger.Error("Failed to clear session after refresh failure", "error", clearErr)
		}
		if errors.Is(err, apperrors.ErrRefreshFailed) {
			return models.Session{}, err
		}
		return models.Session{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}

	rotated := models.NewSession(resp, s.now())
	if err := s.store.Put(ctx, rotated); err != nil {
		// The old pair is dead on the backend either way, keep nothing
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			s.logger.Error("Failed to clear session after store failure", "error", clearErr)
		}
		return models.Session{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}

	s.logger.Debug("Session refreshed", "user_id", rotated.UserID)
	return rotated, nil
}

// Restore reports whether a usable session survives from the previous run.
// Purely local: it never refreshes over the network, the interceptor does
// that lazily once a request actually needs a live token. An unreadable
// store degrades to unauthenticated so startup never hangs on a locked
// secret store.
func (s *Service) Restore(ctx context.Context) Status {
	_, err := s.store.GetAndClearExpired(ctx, s.now())
	switch {
	case err == nil:
		return Authenticated
	case errors.Is(err, apperrors.ErrNoSession):
		return Unauthenticated
	default:
		s.logger.Warn("Session store unreadable on restore, treating as logged out", "error", err)
		return Unauthenticated
	}
}
