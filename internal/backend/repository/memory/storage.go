package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/backend/models"
	"github.com/avoronova/sessionkit/internal/backend/repository"
)

// Storage keeps everything in process memory.
// Default for the stub server and for unit tests; the postgres storage is
// the durable twin with the same semantics.
type Storage struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	sessions map[string]models.SessionRecord // keyed by token hash
	audit    []models.AuditEvent
}

func NewStorage() *Storage {
	return &Storage{
		users:    make(map[uuid.UUID]models.User),
		sessions: make(map[string]models.SessionRecord),
	}
}

func (s *Storage) Users() repository.UserRepo       { return (*userRepo)(s) }
func (s *Storage) Sessions() repository.SessionRepo { return (*sessionRepo)(s) }
func (s *Storage) Audit() repository.AuditRepo      { return (*auditRepo)(s) }

// AuditEvents returns a copy of the trail, oldest first. Test helper.
func (s *Storage) AuditEvents() []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AuditEvent, len(s.audit))
	copy(out, s.audit)
	return out
}

type userRepo Storage

func (r *userRepo) CreateUser(ctx context.Context, email string, hashedPassword string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return models.User{}, apperrors.ErrUserAlreadyExists
		}
	}

	user := models.User{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		Email:          email,
		HashedPassword: hashedPassword,
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *userRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, apperrors.ErrUserNotFound
}

func (r *userRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.HashedPassword = hashedPassword
	r.users[userID] = user
	return nil
}

type sessionRepo Storage

func (r *sessionRepo) Create(ctx context.Context, record models.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[record.TokenHash] = record
	return nil
}

func (r *sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (models.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.sessions[tokenHash]
	if !ok {
		return models.SessionRecord{}, apperrors.ErrSessionRecordNotFound
	}
	return record, nil
}

func (r *sessionRepo) MarkUsed(ctx context.Context, tokenHash string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.sessions[tokenHash]
	if !ok {
		return time.Time{}, apperrors.ErrSessionRecordNotFound
	}
	if record.UsedAt != nil {
		return *record.UsedAt, apperrors.ErrRefreshTokenReused
	}

	now := time.Now()
	record.UsedAt = &now
	r.sessions[tokenHash] = record
	return now, nil
}

func (r *sessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var revoked int64
	for hash, record := range r.sessions {
		if record.UserID == userID {
			delete(r.sessions, hash)
			revoked++
		}
	}
	return revoked, nil
}

type auditRepo Storage

func (r *auditRepo) Append(ctx context.Context, event models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.audit = append(r.audit, event)
	return nil
}
