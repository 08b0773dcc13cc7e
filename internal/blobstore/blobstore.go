// Package blobstore abstracts the external key->bytes service that backs
// remote File and FilePath endpoints. The engine depends only on the Store
// interface so backends (Redis, in-memory) are interchangeable.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Fetch when the key does not exist.
var ErrNotFound = errors.New("blobstore: key not found")

// Store is the fetch/store interface the pipeline and transfer resolver
// depend on, plus Close for releasing the backend.
type Store interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
	Close() error
}
