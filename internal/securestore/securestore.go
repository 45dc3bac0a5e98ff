package securestore

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when no secret is stored under the key
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore is an opaque key-value store for secrets.
// Implementations may be slow or fallible: any error other than
// ErrSecretNotFound means the store itself is unavailable, which callers
// must not confuse with "no secret stored".
type SecretStore interface {
	// Get returns the secret stored under key
	// Must return ErrSecretNotFound if the key has no value
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the secret under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the secret stored under key
	// Deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
}
