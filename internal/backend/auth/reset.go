package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/backend/issuer"
)

const resetTokenTTL = time.Hour

type resetGrant struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// StartPasswordReset issues a reset token for the account.
// The token would normally leave through an email channel; this reference
// backend returns it to the caller. Unknown addresses return an empty token
// without error so the endpoint does not disclose which accounts exist.
func (s *Service) StartPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.storage.Users().GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating reset token. Err: %w", err)
	}
	token := hex.EncodeToString(b)

	s.resetMu.Lock()
	s.resetGrants[issuer.HashToken(token)] = resetGrant{
		userID:    user.ID,
		expiresAt: s.now().Add(resetTokenTTL),
	}
	s.resetMu.Unlock()

	return token, nil
}

// CompletePasswordReset consumes a reset token and replaces the password.
// Every session of the user is revoked: whoever requested the reset wants
// existing tokens dead.
func (s *Service) CompletePasswordReset(ctx context.Context, token string, newPassword string) error {
	hash := issuer.HashToken(token)

	s.resetMu.Lock()
	grant, ok := s.resetGrants[hash]
	if ok {
		delete(s.resetGrants, hash)
	}
	s.resetMu.Unlock()

	if !ok || grant.expiresAt.Before(s.now()) {
		return apperrors.ErrInvalidCredentials
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}
	if err := s.storage.Users().UpdatePassword(ctx, grant.userID, passwordHash); err != nil {
		return err
	}

	if _, err := s.storage.Sessions().RevokeAllForUser(ctx, grant.userID); err != nil {
		s.logger.Error("Failed to revoke sessions after password reset", "user_id", grant.userID, "error", err)
	}
	return nil
}
