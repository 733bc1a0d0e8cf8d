// Package testutil provides fixtures shared by the domain package tests:
// a migrated temporary SQLite store, a cache, and direct row inserts for
// entities the core treats as read-only.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tracker-core/internal/infrastructure/cache"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	_ "github.com/nerrad567/tracker-core/migrations" // registers the schema
)

// OpenDB opens a fresh database under t.TempDir() with every migration applied.
func OpenDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "tracker.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

// NewCache returns an Aside over a fresh MemoryStore together with the store,
// so tests can inspect or poison raw entries.
func NewCache(t *testing.T) (*cache.Aside, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() }) //nolint:errcheck // Test cleanup
	return cache.NewAside(store, time.Hour), store
}

// UserRow describes a users row inserted by InsertUser.
type UserRow struct {
	ID                string
	Email             string
	Role              string
	FirstName         string
	MaxDevice         int
	MaxFencePerDevice int
}

// InsertUser writes a user row. Empty ID, Email and Role are filled in;
// zero limits are stored as -1 (defer to global config).
func InsertUser(t *testing.T, db *database.DB, u UserRow) string {
	t.Helper()

	if u.ID == "" {
		u.ID = "usr-" + uuid.NewString()[:8]
	}
	if u.Email == "" {
		u.Email = u.ID + "@example.com"
	}
	if u.Role == "" {
		u.Role = "user"
	}
	if u.MaxDevice == 0 {
		u.MaxDevice = -1
	}
	if u.MaxFencePerDevice == 0 {
		u.MaxFencePerDevice = -1
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO users (id, email, role, first_name, max_device, max_fence_per_device, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Role, u.FirstName, u.MaxDevice, u.MaxFencePerDevice, now, now,
	)
	if err != nil {
		t.Fatalf("inserting user %s: %v", u.ID, err)
	}
	return u.ID
}

// SetUserLimits changes a user's quota overrides in place.
func SetUserLimits(t *testing.T, db *database.DB, id string, maxDevice, maxFencePerDevice int) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		"UPDATE users SET max_device = ?, max_fence_per_device = ? WHERE id = ?",
		maxDevice, maxFencePerDevice, id,
	)
	if err != nil {
		t.Fatalf("updating user %s limits: %v", id, err)
	}
}

// DeviceRow describes a configured pool row plus its device, inserted by InsertDevice.
type DeviceRow struct {
	Serial       string
	UserID       string
	AssignStatus string
	Status       string
	MaxFence     int
}

// InsertDevice writes a configured pool row and its device. Empty
// AssignStatus and Status default to not_assigned and inactive; a zero
// MaxFence is stored as -1.
func InsertDevice(t *testing.T, db *database.DB, d DeviceRow) {
	t.Helper()

	if d.AssignStatus == "" {
		d.AssignStatus = "not_assigned"
	}
	if d.Status == "" {
		d.Status = "inactive"
	}
	if d.MaxFence == 0 {
		d.MaxFence = -1
	}
	var userID any
	if d.UserID != "" {
		userID = d.UserID
	}

	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx,
		"INSERT INTO device_pools (id, serial, status, created_at, updated_at) VALUES (?, ?, 'configured', ?, ?)",
		"pool-"+uuid.NewString()[:8], d.Serial, now, now,
	)
	if err != nil {
		t.Fatalf("inserting pool %s: %v", d.Serial, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO devices (id, serial, assign_status, status, user_id, max_fence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"dev-"+uuid.NewString()[:8], d.Serial, d.AssignStatus, d.Status, userID, d.MaxFence, now, now,
	)
	if err != nil {
		t.Fatalf("inserting device %s: %v", d.Serial, err)
	}
}
