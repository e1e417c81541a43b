package store

import (
	"context"
)

// KV is the byte-level key/value backend under Store. Implementations must be
// safe for concurrent use and return ErrNotFound from Get for missing keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
