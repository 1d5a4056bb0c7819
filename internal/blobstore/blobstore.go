// Package blobstore keeps screenshots on disk, addressed by the sha256 of their bytes.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Put writes data and returns its key (hex sha256 plus extension). Writing the
// same bytes twice is a no-op.
func (s *Store) Put(data []byte, extension string) (string, error) {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:]) + extension
	path := s.path(key)

	if _, err := os.Stat(path); err == nil {
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob shard: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporary.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		os.Remove(temporary.Name())
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return key, nil
}

func (s *Store) Open(key string) (io.ReadSeekCloser, error) {
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}
	file, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return file, nil
}

// Read returns the full contents of a blob.
func (s *Store) Read(key string) ([]byte, error) {
	file, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (s *Store) Delete(key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// path shards by the first two hex characters.
func (s *Store) path(key string) string {
	return filepath.Join(s.root, key[:2], key)
}

// ValidKey accepts 64 lowercase hex characters optionally followed by a short
// extension such as ".png".
func ValidKey(key string) bool {
	if len(key) < 64 {
		return false
	}
	digest, extension := key[:64], key[64:]
	for _, r := range digest {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	if extension == "" {
		return true
	}
	if len(extension) > 6 || extension[0] != '.' {
		return false
	}
	for _, r := range extension[1:] {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
