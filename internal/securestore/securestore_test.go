package securestore

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_MemoryStore(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	t.Run("get missing key", func(t *testing.T) {
		_, err := s.Get(t.Context(), "missing")
		require.ErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(t.Context(), "k", []byte("value")))

		got, err := s.Get(t.Context(), "k")
		require.NoError(t, err)
		require.Equal(t, []byte("value"), got)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Set(t.Context(), "gone", []byte("v")))
		require.NoError(t, s.Delete(t.Context(), "gone"))
		require.NoError(t, s.Delete(t.Context(), "gone"))

		_, err := s.Get(t.Context(), "gone")
		require.ErrorIs(t, err, ErrSecretNotFound)
	})
}

func Test_FileStore(t *testing.T) {
	t.Parallel()

	masterKey := hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

	t.Run("roundtrip survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secrets.bin")

		s, err := NewFileStore(path, masterKey)
		require.NoError(t, err)
		require.NoError(t, s.Set(t.Context(), "session", []byte(`{"user":"u1"}`)))

		reopened, err := NewFileStore(path, masterKey)
		require.NoError(t, err)

		got, err := reopened.Get(t.Context(), "session")
		require.NoError(t, err)
		require.Equal(t, []byte(`{"user":"u1"}`), got)
	})

	t.Run("wrong master key fails to unseal", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secrets.bin")

		s, err := NewFileStore(path, masterKey)
		require.NoError(t, err)
		require.NoError(t, s.Set(t.Context(), "k", []byte("v")))

		otherKey := hex.EncodeToString([]byte("ffffffffffffffffffffffffffffffff"))
		wrong, err := NewFileStore(path, otherKey)
		require.NoError(t, err)

		_, err = wrong.Get(t.Context(), "k")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("rejects short master key", func(t *testing.T) {
		_, err := NewFileStore(filepath.Join(t.TempDir(), "s"), "abcd")
		require.Error(t, err)
	})

	t.Run("missing file means empty store", func(t *testing.T) {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "never-written"), masterKey)
		require.NoError(t, err)

		_, err = s.Get(t.Context(), "anything")
		require.ErrorIs(t, err, ErrSecretNotFound)
	})
}
