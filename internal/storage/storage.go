// Package storage keeps the original uploaded documents. Originals are
// retained whatever the import outcome so failed statements can be
// reprocessed.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a reference names no stored blob.
var ErrNotFound = errors.New("storage: blob not found")

// Blobs stores and loads original documents by reference.
type Blobs interface {
	Put(name string, data []byte) (ref, checksum string, err error)
	Get(ref string) ([]byte, error)
}

// FileStore writes blobs under a root directory, addressed by content hash.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data and returns its reference and checksum. Identical
// content maps to the same reference.
func (s *FileStore) Put(name string, data []byte) (string, string, error) {
	sum := Checksum(data)
	ref := sum[:2] + "/" + sum + strings.ToLower(filepath.Ext(name))
	path := filepath.Join(s.root, filepath.FromSlash(ref))

	if _, err := os.Stat(path); err == nil {
		return ref, sum, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("storage: put %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("storage: put %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", "", fmt.Errorf("storage: put %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", "", fmt.Errorf("storage: put %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", "", fmt.Errorf("storage: put %s: %w", name, err)
	}
	return ref, sum, nil
}

func (s *FileStore) Get(ref string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("storage: get %s: %w", ref, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(s.root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("storage: get %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", ref, err)
	}
	return data, nil
}
