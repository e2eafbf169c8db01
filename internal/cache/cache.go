// Package cache holds small documents that are expensive to fetch, such as
// the directory's signing key set.
package cache

import (
	"context"
	"time"
)

// FillFunc produces the value of a missing key.
type FillFunc func(ctx context.Context) ([]byte, error)

// Cache is a fetch-or-populate store. Concurrent misses on one key wait for
// a single fill; fill errors are returned to every waiter and never cached.
type Cache interface {
	Fetch(ctx context.Context, key string, ttl time.Duration, fill FillFunc) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
