package docstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("document not found")

// Store is a namespaced key to JSON-document store. Reads and writes are
// plain get/replace with no transactions; concurrent writers to the same
// key are last-writer-wins.
type Store interface {
	Get(ctx context.Context, namespace, key string, out any) error
	Put(ctx context.Context, namespace, key string, doc any) error
	Delete(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace string) ([]string, error)
}
