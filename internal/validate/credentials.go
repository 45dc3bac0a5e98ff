package validate

import (
	"fmt"

	"github.com/avoronova/sessionkit/internal/apperrors"
	"github.com/avoronova/sessionkit/internal/models"
)

const (
	// MinUsernameLen is the shortest accepted username or email
	MinUsernameLen = 3

	// MinPasswordLen applies to login
	MinPasswordLen = 6

	// MinRegistrationPasswordLen applies to registration and password reset
	MinRegistrationPasswordLen = 8
)

// Login validates credentials before a login call.
// Rules run in order and the first failure wins; no network, no state.
func Login(c models.Credentials) error {
	return check(c, MinPasswordLen)
}

// Registration validates credentials before a register or reset call.
// Same rules as Login but with a stricter password minimum.
func Registration(c models.Credentials) error {
	return check(c, MinRegistrationPasswordLen)
}

func check(c models.Credentials, minPassword int) error {
	if c.Username == "" {
		return apperrors.ErrMissingUsername
	}
	if len(c.Username) < MinUsernameLen {
		return fmt.Errorf("%w: minimum %d characters", apperrors.ErrUsernameTooShort, MinUsernameLen)
	}
	if c.Password == "" {
		return apperrors.ErrMissingPassword
	}
	if len(c.Password) < minPassword {
		return fmt.Errorf("%w: minimum %d characters", apperrors.ErrPasswordTooShort, minPassword)
	}
	return nil
}
