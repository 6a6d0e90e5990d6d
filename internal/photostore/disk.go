package photostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a photo key does not exist.
var ErrNotFound = errors.New("photostore: not found")

// DiskStore stores photos on the local filesystem. URLs are served by the
// HTTP API under baseURL (e.g. "http://localhost:8080/photos").
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates a DiskStore rooted at dir.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("photostore: create directory: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Store implements Store.
func (s *DiskStore) Store(_ context.Context, data []byte, filename, subpath string) (string, string, error) {
	key := objectKey(filename, subpath)

	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", "", fmt.Errorf("photostore: create subpath: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", "", fmt.Errorf("photostore: write %s: %w", key, err)
	}

	return key, s.baseURL + "/" + key, nil
}

// Retrieve implements Store.
func (s *DiskStore) Retrieve(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("photostore: read %s: %w", key, err)
	}
	return data, nil
}
