package userctx

import (
	"context"

	"github.com/avoronova/sessionkit/internal/backend/models"
)

type ctxKey string

const userKey ctxKey = "user"

// New returns a context carrying the user the auth middleware resolved
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext extracts the user set by the auth middleware.
// ok is false on routes that never went through it.
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}
