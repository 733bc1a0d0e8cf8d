package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tracker-core/internal/infrastructure/retry"
)

// Logger defines the logging interface used by Aside.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Aside applies cache-aside reads and best-effort write-through on a Store.
// None of its methods return cache errors: failures are logged, counted and
// otherwise ignored.
type Aside struct {
	store  Store
	ttl    time.Duration
	writes retry.Policy
	logger Logger
}

// NewAside wraps store. A ttl <= 0 selects DefaultTTL.
func NewAside(store Store, ttl time.Duration) *Aside {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Aside{
		store:  store,
		ttl:    ttl,
		writes: retry.New(retry.DefaultAttempts, retryableWrite),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (a *Aside) SetLogger(logger Logger) {
	a.logger = logger
}

// SetRetryAttempts sets how many times a failed cache write is retried.
func (a *Aside) SetRetryAttempts(n int) {
	a.writes = retry.New(n, retryableWrite)
}

// TTL returns the default entry lifetime.
func (a *Aside) TTL() time.Duration {
	return a.ttl
}

// GetJSON decodes the cached value for key into dst and reports whether it
// was found. Undecodable entries are deleted and reported as a miss.
func (a *Aside) GetJSON(ctx context.Context, key string, dst any) bool {
	family := keyFamily(key)

	raw, found, err := a.store.Get(ctx, key)
	if err != nil {
		metrics.ObserveCacheLookup(family, metrics.ResultError)
		a.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if !found {
		metrics.ObserveCacheLookup(family, metrics.ResultMiss)
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.ObserveCacheLookup(family, metrics.ResultError)
		a.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		a.Delete(ctx, key)
		return false
	}

	metrics.ObserveCacheLookup(family, metrics.ResultHit)
	return true
}

// SetJSON writes v under key with the default TTL.
func (a *Aside) SetJSON(ctx context.Context, key string, v any) {
	a.SetJSONWithTTL(ctx, key, v, a.ttl)
}

// SetJSONWithTTL writes v under key with an explicit TTL.
func (a *Aside) SetJSONWithTTL(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		a.logger.Warn("cache value not encodable", "key", key, "error", err)
		return
	}

	err = a.writes.Do(ctx, func() error {
		return a.store.Set(ctx, key, raw, ttl)
	})
	if err != nil {
		metrics.IncCacheWriteError("set")
		a.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Delete removes keys. Used when a write path cannot rebuild the cached value.
func (a *Aside) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	err := a.writes.Do(ctx, func() error {
		return a.store.Del(ctx, keys...)
	})
	if err != nil {
		metrics.IncCacheWriteError("del")
		a.logger.Warn("cache delete failed", "keys", keys, "error", err)
	}
}

func retryableWrite(err error) bool {
	return !errors.Is(err, ErrClosed) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// keyFamily groups keys for metrics: "device_by_serial_X" -> "device".
func keyFamily(key string) string {
	if i := strings.Index(key, "_by_"); i > 0 {
		return key[:i]
	}
	return key
}
