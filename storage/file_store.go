package storage

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// FileStore persists the session blob to a single file, the CLI analogue of
// the browser's localStorage entry. Writes are atomic (temp file + rename)
// and the file is created with 0600 permissions.
//
// With WithEncryptionKey the blob is sealed with XChaCha20-Poly1305 before
// it touches disk, nonce prepended.
type FileStore struct {
	path string
	aead keyedAEAD
}

type keyedAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore) error

// WithEncryptionKey enables at-rest encryption. The key must be 32 bytes.
func WithEncryptionKey(key []byte) FileStoreOption {
	return func(s *FileStore) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("create session cipher: %w", err)
		}
		s.aead = aead
		return nil
	}
}

// NewFileStore creates a file-backed store at path. Parent directories are
// created on the first Save, not here.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{path: path}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load implements Storage.Load.
func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	if s.aead == nil {
		return data, nil
	}

	ns := s.aead.NonceSize()
	if len(data) < ns {
		return nil, fmt.Errorf("session file too short to hold nonce")
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt session file: %w", err)
	}

	return plain, nil
}

// Save implements Storage.Save.
func (s *FileStore) Save(_ context.Context, data []byte) error {
	if s.aead != nil {
		nonce := make([]byte, s.aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("generate nonce: %w", err)
		}
		data = append(nonce, s.aead.Seal(nil, nonce, data, nil)...)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}

	return nil
}

// Clear implements Storage.Clear.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
