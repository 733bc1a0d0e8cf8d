// Package cache implements the cache-aside adapter shared by every repository.
//
// A Store is the raw key/value collaborator (get, set with TTL, delete).
// Two implementations are provided:
//   - MemoryStore: process-local map with per-entry expiry, used for single
//     node deployments and tests
//   - RedisStore: github.com/redis/go-redis/v9, used when several core
//     instances share one logical cache
//
// Aside layers the read-through/write-through discipline on top of a Store:
// values are JSON encoded, entries default to a one hour TTL, writes are
// retried a bounded number of times, and no cache failure is ever returned
// to the caller. The database stays the source of truth.
//
// Keys are deterministic strings built by the helpers in keys.go, for example
// "device_by_serial_VT-1A2B-abc123-def456" or "site_config_value_by_key_max_device_per_user".
package cache
