package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const fileKeyLen = 32

// FileStore persists secrets in a single AES-GCM sealed file.
// The sealing key is derived from a user supplied master key with
// HKDF-SHA256, so the raw master key never touches the disk.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  []byte
}

// NewFileStore creates a store backed by the file at path.
// masterKeyHex is a hex encoded key of at least 16 bytes, e.g. produced
// by the genkey command.
func NewFileStore(path string, masterKeyHex string) (*FileStore, error) {
	master, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}
	if len(master) < 16 {
		return nil, errors.New("master key must be at least 16 bytes")
	}

	key, err := deriveFileKey(master)
	if err != nil {
		return nil, err
	}

	return &FileStore{path: path, key: key}, nil
}

// deriveFileKey derives the AES key from the master key using HKDF-SHA256
func deriveFileKey(master []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, master, nil, []byte("securestore-file"))
	key := make([]byte, fileKeyLen)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return nil, err
	}

	value, ok := secrets[key]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return value, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return err
	}

	secrets[key] = value
	return s.save(secrets)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return err
	}

	delete(secrets, key)
	return s.save(secrets)
}

// load reads and unseals the whole secrets file
// Missing file means an empty store
func (s *FileStore) load() (map[string][]byte, error) {
	sealed, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return map[string][]byte{}, nil
	case err != nil:
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("secrets file is corrupted")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("unseal secrets file: %w", err)
	}

	var secrets map[string][]byte
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return nil, fmt.Errorf("decode secrets file: %w", err)
	}
	return secrets, nil
}

// save seals and writes the whole secrets file atomically
func (s *FileStore) save(secrets map[string][]byte) error {
	plain, err := json.Marshal(secrets)
	if err != nil {
		return err
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	sealed := gcm.Seal(nonce, nonce, plain, nil)

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
