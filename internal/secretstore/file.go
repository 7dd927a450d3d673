package secretstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dyluth/cardlink/pkg/credentials"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	keySize   = 32

	hkdfSalt = "cardlink-secretstore"
)

// FileStore keeps the record in a single file readable only by its owner.
// With a passphrase the file is sealed with secretbox under a key derived
// by HKDF-SHA256; without one it holds plain JSON.
type FileStore struct {
	path string
	key  *[keySize]byte
}

// NewFileStore creates a store writing to path. An empty passphrase disables sealing.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("secret file path cannot be empty")
	}

	s := &FileStore{path: path}
	if passphrase != "" {
		key, err := deriveKey(passphrase, path)
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	return s, nil
}

// DefaultPath returns the secret file location under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "cardlink", DefaultAccount+".json"), nil
}

// Sealed reports whether the file contents are encrypted.
func (s *FileStore) Sealed() bool {
	return s.key != nil
}

func deriveKey(passphrase, path string) (*[keySize]byte, error) {
	var key [keySize]byte
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(hkdfSalt), []byte(filepath.Base(path)))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return &key, nil
}

func (s *FileStore) Load(ctx context.Context) (credentials.Pair, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return credentials.Pair{}, false, nil
	}
	if err != nil {
		return credentials.Pair{}, false, newError(KindReadFailed, err)
	}

	if s.key != nil {
		data, err = s.open(data)
		if err != nil {
			return credentials.Pair{}, false, err
		}
	}

	p, err := decode(data)
	if err != nil {
		return credentials.Pair{}, false, err
	}
	return p, true, nil
}

func (s *FileStore) Save(ctx context.Context, p credentials.Pair) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	if s.key != nil {
		data, err = s.seal(data)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return newError(KindWriteFailed, err)
	}

	// Write-then-rename so a crash never leaves a truncated record.
	tmp, err := os.CreateTemp(dir, ".cardlink-secret-*")
	if err != nil {
		return newError(KindWriteFailed, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return newError(KindWriteFailed, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return newError(KindWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return newError(KindWriteFailed, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return newError(KindWriteFailed, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return newError(KindDeleteFailed, err)
	}
	return nil
}

func (s *FileStore) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, newError(KindEncodeFailed, fmt.Errorf("failed to generate nonce: %w", err))
	}
	return secretbox.Seal(nonce[:], plain, &nonce, s.key), nil
}

func (s *FileStore) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, newError(KindUnexpectedData, errors.New("sealed record too short"))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, newError(KindUnexpectedData, errors.New("sealed record failed authentication"))
	}
	return plain, nil
}
