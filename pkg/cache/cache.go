package cache

import (
	"context"
	"time"
)

// Cache defines the interface for caching services. Get returns "" and a nil
// error when the key does not exist.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
