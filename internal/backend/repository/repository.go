package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avoronova/sessionkit/internal/backend/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If a user with the email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, hashedPassword string) (models.User, error)

	// Get user by id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Replace the user's password hash
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
}

// Session record repository interface
type SessionRepo interface {
	// Create session record
	Create(ctx context.Context, record models.SessionRecord) error

	// Return the record for the token hash whatever its state.
	// Consumed and expired records are returned too: the caller needs them
	// to tell reuse apart from plain unknown tokens.
	// If no record exists must return apperrors.ErrSessionRecordNotFound
	GetByTokenHash(ctx context.Context, tokenHash string) (models.SessionRecord, error)

	// Mark the record consumed
	// Must be atomic and keep the first consumption time: if the record is
	// consumed already must return apperrors.ErrRefreshTokenReused
	MarkUsed(ctx context.Context, tokenHash string) (time.Time, error)

	// Delete every record of the user, consumed or not.
	// Returns the number of revoked records.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Audit log repository interface
type AuditRepo interface {
	// Append the event to the audit trail. Append-only: no update or
	// delete operations exist on purpose.
	Append(ctx context.Context, event models.AuditEvent) error
}

// Storage combines the backend repositories
type Storage interface {
	Users() UserRepo
	Sessions() SessionRepo
	Audit() AuditRepo
}
