package postgres

import (
	"context"
	"fmt"

	"github.com/avoronova/sessionkit/internal/backend/models"
)

type AuditRepo struct {
	DB DBTX
}

const appendAuditEvent = `-- name: AppendAuditEvent
INSERT INTO auth_audit (id, event_type, user_id, success, created_at)
VALUES ($1, $2, $3, $4, $5)
`

func (r *AuditRepo) Append(ctx context.Context, event models.AuditEvent) error {
	_, err := r.DB.Exec(ctx, appendAuditEvent,
		event.ID, event.EventType, event.UserID, event.Success, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
