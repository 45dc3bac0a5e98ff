package guard

import (
	"context"
	"errors"
	"time"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/models"
)

// DenyReason explains a denied access decision
type DenyReason string

const (
	ReasonUnauthenticated DenyReason = "unauthenticated"
)

// Decision is the outcome of a route access check
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var allowed = Decision{Allowed: true}

func denied(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// SessionStore is the part of the session store the guard needs
type SessionStore interface {
	GetAndClearExpired(ctx context.Context, now time.Time) (models.Session, error)
}

// Guard decides per navigation attempt whether a route may be entered.
// Public routes never touch the store; protected routes need a live
// session, and an expired one is cleared as a side effect of the check.
type Guard struct {
	store  SessionStore
	public map[string]struct{}
	now    func() time.Time
}

// DefaultPublicRoutes are reachable without a session
var DefaultPublicRoutes = []string{"login", "signup", "forgot-password"}

func New(store SessionStore, publicRoutes []string, now func() time.Time) *Guard {
	if publicRoutes == nil {
		publicRoutes = DefaultPublicRoutes
	}
	if now == nil {
		now = time.Now
	}

	public := make(map[string]struct{}, len(publicRoutes))
	for _, route := range publicRoutes {
		public[route] = struct{}{}
	}

	return &Guard{store: store, public: public, now: now}
}

// CanAccess returns the access decision for the route
func (g *Guard) CanAccess(ctx context.Context, route string) Decision {
	if _, ok := g.public[route]; ok {
		return allowed
	}

	_, err := g.store.GetAndClearExpired(ctx, g.now())
	switch {
	case err == nil:
		return allowed
	case errors.Is(err, apperrors.ErrNoSession):
		return denied(ReasonUnauthenticated)
	default:
		// Store errors fail closed: without a readable session nothing
		// protected is reachable
		return denied(ReasonUnauthenticated)
	}
}
