package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/backend/models"
)

type SessionRepo struct {
	DB DBTX
}

const createSession = `-- name: CreateSession
INSERT INTO auth_sessions (id, user_id, token_hash, created_at, expires_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`

func (r *SessionRepo) Create(ctx context.Context, record models.SessionRecord) error {
	rows, _ := r.DB.Query(ctx, createSession,
		record.ID, record.UserID, record.TokenHash, record.CreatedAt, record.ExpiresAt, record.UsedAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getSessionByTokenHash = `-- name: GetSessionByTokenHash
SELECT id, user_id, created_at, expires_at, used_at
FROM auth_sessions
WHERE token_hash = $1
`

// GetByTokenHash returns the record even if it is consumed or expired
func (r *SessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (models.SessionRecord, error) {
	rows, _ := r.DB.Query(ctx, getSessionByTokenHash, tokenHash)
	record, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.SessionRecord, error) {
		rec := models.SessionRecord{TokenHash: tokenHash}
		err := row.Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.ExpiresAt, &rec.UsedAt)
		return rec, err
	})

	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, pgx.ErrNoRows):
		return record, apperrors.ErrSessionRecordNotFound
	default:
		return record, fmt.Errorf("db error: %w", err)
	}
}

const markSessionUsed = `-- name: MarkSessionUsed
UPDATE auth_sessions
SET used_at = COALESCE(used_at, $2)
WHERE token_hash = $1
RETURNING used_at
`

// MarkUsed consumes the record.
// COALESCE keeps the first consumption time, so a second consumption of the
// same token is detectable as reuse without a race between read and write.
func (r *SessionRepo) MarkUsed(ctx context.Context, tokenHash string) (time.Time, error) {
	// Postgres keeps microsecond precision, truncate so the returned
	// value compares equal to what we sent
	now := time.Now().Truncate(time.Microsecond)
	rows, _ := r.DB.Query(ctx, markSessionUsed, tokenHash, now)
	usedAt, err := pgx.CollectOneRow(rows, pgx.RowTo[time.Time])

	switch {
	case err == nil && usedAt.Equal(now):
		return usedAt, nil
	case err == nil: // usedAt != now means the token was consumed before
		return usedAt, apperrors.ErrRefreshTokenReused
	case errors.Is(err, pgx.ErrNoRows):
		return usedAt, apperrors.ErrSessionRecordNotFound
	default:
		return usedAt, fmt.Errorf("db error: %w", err)
	}
}

const revokeAllForUser = `-- name: RevokeAllSessionsForUser
DELETE FROM auth_sessions
WHERE user_id = $1
`

func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllForUser, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}
