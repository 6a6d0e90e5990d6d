// Package photostore implements the evidence photo boundary:
// store raw bytes under a key, get back a stable retrieval URL.
//
// Two implementations are provided: a local-disk store for development
// and an S3-compatible store (AWS, MinIO, Hetzner) for production.
package photostore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Store persists evidence photos and serves them back by key.
type Store interface {
	// Store writes data under a key derived from filename and the optional
	// session-scoped subpath, returning the key and a retrieval URL.
	Store(ctx context.Context, data []byte, filename, subpath string) (key, url string, err error)

	// Retrieve returns the bytes previously stored under key.
	Retrieve(ctx context.Context, key string) ([]byte, error)
}

// objectKey builds a collision-free object key. The uuid prefix keeps
// repeated uploads of the same filename distinct.
func objectKey(filename, subpath string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "photo.jpg"
	}
	key := uuid.New().String() + "-" + name
	if subpath != "" {
		key = strings.Trim(subpath, "/") + "/" + key
	}
	return key
}

// validateKey rejects traversal attempts in client-supplied keys.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("photostore: empty key")
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return fmt.Errorf("photostore: invalid key %q", key)
	}
	return nil
}
