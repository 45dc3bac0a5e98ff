package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Email          string
	HashedPassword string
}

// SessionRecord is one live refresh token lease.
// Only a one-way hash of the refresh token is kept; the plaintext exists
// solely on the client. UsedAt marks a consumed (rotated) record: presenting
// its token again is a reuse event.
type SessionRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil until the token is consumed by a refresh
}

// Audit event types
const (
	EventLogin       = "login"
	EventRefresh     = "refresh"
	EventLogout      = "logout"
	EventFailedLogin = "failed_login"
	EventRegister    = "register"
)

// AuditEvent is an append-only auth trail record.
// Written on every auth operation, consumed by operational tooling.
type AuditEvent struct {
	ID        uuid.UUID
	EventType string
	UserID    *uuid.UUID // nil when the actor could not be attributed
	Success   bool
	CreatedAt time.Time
}
