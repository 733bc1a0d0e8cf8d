package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the lifetime of an entry when the caller does not choose one.
const DefaultTTL = time.Hour

// ErrClosed is returned by a Store used after Close.
var ErrClosed = errors.New("cache: store closed")

// Store is the key/value cache collaborator.
//
// Get reports found=false with a nil error on a miss. Set with ttl <= 0 uses
// the store's default lifetime. Del ignores keys that do not exist.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}
