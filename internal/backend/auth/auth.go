package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/backend/issuer"
	"github.com/avoronova/sessionkit/internal/backend/models"
	"github.com/avoronova/sessionkit/internal/backend/ratelimit"
	"github.com/avoronova/sessionkit/internal/backend/repository"
	"github.com/avoronova/sessionkit/internal/logger"
)

const (
	defaultLoginFailureLimit  = 5
	defaultLoginFailureWindow = 15 * time.Minute
	defaultRefreshLimit       = 60
	defaultRefreshWindow      = time.Minute
)

type Config struct {
	// Hasher to use during registration or login
	// Defaults to BcryptHasher
	Hasher PasswordHasher

	// Failed login throttling per identity
	LoginFailureLimit  int
	LoginFailureWindow time.Duration

	// Refresh call throttling per network origin
	RefreshLimit  int
	RefreshWindow time.Duration

	Now    func() time.Time
	Logger logger.Logger
}

// Service implements the rotation and reuse-detection contract of the
// token protocol: every refresh consumes the presented token and issues a
// new pair; presenting an already consumed token revokes every session of
// that user, forcing all devices to authenticate again.
type Service struct {
	issuer  *issuer.Issuer
	storage repository.Storage
	hasher  PasswordHasher

	loginLockout    *ratelimit.Limiter
	refreshThrottle *ratelimit.Limiter

	resetMu     sync.Mutex
	resetGrants map[string]resetGrant

	now    func() time.Time
	logger logger.Logger
}

func NewService(cfg Config, iss *issuer.Issuer, storage repository.Storage) (*Service, error) {
	if iss == nil || storage == nil {
		return nil, errors.New("issuer and storage must not be nil")
	}

	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}
	if cfg.LoginFailureLimit == 0 {
		cfg.LoginFailureLimit = defaultLoginFailureLimit
	}
	if cfg.LoginFailureWindow == 0 {
		cfg.LoginFailureWindow = defaultLoginFailureWindow
	}
	if cfg.RefreshLimit == 0 {
		cfg.RefreshLimit = defaultRefreshLimit
	}
	if cfg.RefreshWindow == 0 {
		cfg.RefreshWindow = defaultRefreshWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	return &Service{
		issuer:          iss,
		storage:         storage,
		hasher:          cfg.Hasher,
		loginLockout:    ratelimit.New(cfg.LoginFailureLimit, cfg.LoginFailureWindow, cfg.Now),
		refreshThrottle: ratelimit.New(cfg.RefreshLimit, cfg.RefreshWindow, cfg.Now),
		resetGrants:     make(map[string]resetGrant),
		now:             cfg.Now,
		logger:          cfg.Logger,
	}, nil
}

// Register creates an account
func (s *Service) Register(ctx context.Context, email string, password string) (models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.storage.Users().CreateUser(ctx, email, hash)
	if err != nil {
		s.audit(ctx, models.EventRegister, nil, false)
		return models.User{}, err
	}

	s.audit(ctx, models.EventRegister, &user.ID, true)
	return user, nil
}

// Login verifies credentials and issues a token pair.
// Identities that keep failing are locked out for the configured window and
// get apperrors.ErrRateLimited, which is distinct from bad credentials.
func (s *Service) Login(ctx context.Context, email string, password string) (issuer.Pair, error) {
	lockoutKey := "login:" + email

	if s.loginLockout.Blocked(lockoutKey) {
		s.audit(ctx, models.EventFailedLogin, nil, false)
		return issuer.Pair{}, apperrors.ErrRateLimited
	}

	user, err := s.storage.Users().GetUserByEmail(ctx, email)
	if err != nil {
		s.loginLockout.Record(lockoutKey)
		s.audit(ctx, models.EventFailedLogin, nil, false)
		return issuer.Pair{}, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		s.loginLockout.Record(lockoutKey)
		s.audit(ctx, models.EventFailedLogin, &user.ID, false)
		return issuer.Pair{}, apperrors.ErrInvalidCredentials
	}

	s.loginLockout.Reset(lockoutKey)

	pair, record, err := s.issuer.IssuePair(user.ID, s.now())
	if err != nil {
		return issuer.Pair{}, fmt.Errorf("token could not be generated. %w", err)
	}
	if err := s.storage.Sessions().Create(ctx, record); err != nil {
		return issuer.Pair{}, fmt.Errorf("error while saving session record. Err: %w", err)
	}

	s.audit(ctx, models.EventLogin, &user.ID, true)
	return pair, nil
}

// Refresh rotates the presented refresh token.
// Consuming the record and detecting reuse is one atomic step, so two
// racing refreshes with the same token can never both win.
func (s *Service) Refresh(ctx context.Context, refreshToken string, origin string) (issuer.Pair, error) {
	if !s.refreshThrottle.Allow("refresh:" + origin) {
		return issuer.Pair{}, apperrors.ErrRateLimited
	}

	hash := issuer.HashToken(refreshToken)

	record, err := s.storage.Sessions().GetByTokenHash(ctx, hash)
	if err != nil {
		s.audit(ctx, models.EventRefresh, nil, false)
		return issuer.Pair{}, apperrors.ErrRefreshFailed
	}

	_, err = s.storage.Sessions().MarkUsed(ctx, hash)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenReused):
		// Rotated token presented again: compromise signal. Every session
		// of the user dies, all devices must log in from scratch.
		revoked, revokeErr := s.storage.Sessions().RevokeAllForUser(ctx, record.UserID)
		if revokeErr != nil {
			s.logger.Error("Failed to revoke sessions after reuse", "user_id", record.UserID, "error", revokeErr)
		}
		s.logger.Warn("Refresh token reuse detected, revoked all user sessions",
			"user_id", record.UserID, "revoked", revoked)
		s.audit(ctx, models.EventRefresh, &record.UserID, false)
		return issuer.Pair{}, apperrors.ErrRefreshTokenReused

	case errors.Is(err, apperrors.ErrSessionRecordNotFound):
		s.audit(ctx, models.EventRefresh, &record.UserID, false)
		return issuer.Pair{}, apperrors.ErrRefreshFailed

	case err != nil:
		return issuer.Pair{}, fmt.Errorf("error while consuming refresh token. Err: %w", err)
	}

	if record.ExpiresAt.Before(s.now()) {
		s.audit(ctx, models.EventRefresh, &record.UserID, false)
		return issuer.Pair{}, apperrors.ErrRefreshTokenExpired
	}

	pair, newRecord, err := s.issuer.IssuePair(record.UserID, s.now())
	if err != nil {
		return issuer.Pair{}, fmt.Errorf("token could not be generated. %w", err)
	}
	if err := s.storage.Sessions().Create(ctx, newRecord); err != nil {
		return issuer.Pair{}, fmt.Errorf("error while saving session record. Err: %w", err)
	}

	s.audit(ctx, models.EventRefresh, &record.UserID, true)
	return pair, nil
}

// Logout invalidates the presented refresh token.
// Idempotent from the client's perspective: unknown or already consumed
// tokens are fine, the record ends up dead either way.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	hash := issuer.HashToken(refreshToken)

	record, err := s.storage.Sessions().GetByTokenHash(ctx, hash)
	if err != nil {
		return nil
	}

	_, err = s.storage.Sessions().MarkUsed(ctx, hash)
	if err != nil && !errors.Is(err, apperrors.ErrRefreshTokenReused) && !errors.Is(err, apperrors.ErrSessionRecordNotFound) {
		return fmt.Errorf("error while invalidating session record. Err: %w", err)
	}

	s.audit(ctx, models.EventLogout, &record.UserID, true)
	return nil
}

// Authenticate resolves a bearer access token into its user
func (s *Service) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	userID, err := s.issuer.ParseAccess(accessToken)
	if err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return s.storage.Users().GetUserByID(ctx, userID)
}

// LoginRetryAfter reports how long the identity stays locked out
func (s *Service) LoginRetryAfter(email string) time.Duration {
	return s.loginLockout.RetryAfter("login:" + email)
}

// RefreshRetryAfter reports how long the origin stays throttled
func (s *Service) RefreshRetryAfter(origin string) time.Duration {
	return s.refreshThrottle.RetryAfter("refresh:" + origin)
}

// audit appends to the trail best-effort: a broken audit store must not
// take the auth path down, but it is never silent
func (s *Service) audit(ctx context.Context, eventType string, userID *uuid.UUID, success bool) {
	event := models.AuditEvent{
		ID:        uuid.New(),
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		CreatedAt: s.now(),
	}

	if err := s.storage.Audit().Append(ctx, event); err != nil {
		s.logger.Error("Failed to append audit event", "event_type", eventType, "error", err)
	}
}
