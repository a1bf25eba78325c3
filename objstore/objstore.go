// Package objstore abstracts the bytes store shared by the indexing
// and inference pipelines. Both backends provide atomic puts: readers
// never observe a partially written object under the final key.
package objstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("objstore: key not found")

// Store is the object store contract. Keys are slash-separated paths
// relative to the store root (bucket or directory).
type Store interface {
	// Get returns the full object bytes.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes data under key atomically.
	Put(ctx context.Context, key string, data []byte) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
