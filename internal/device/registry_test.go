package device

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/tracker-core/internal/infrastructure/cache"
	"github.com/nerrad567/tracker-core/internal/paging"
	"github.com/nerrad567/tracker-core/internal/testutil"
)

func TestRegistry_ReadThrough(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	aside, store := testutil.NewCache(t)
	reg := NewRegistry(NewSQLitePoolRepository(db), NewSQLiteRepository(db), aside)

	seeded := seedDevice(t, db, "VT-REG-1")

	d, err := reg.GetBySerial(ctx, "vt-reg-1")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if d.ID != seeded.ID {
		t.Errorf("GetBySerial() ID = %q, want %q", d.ID, seeded.ID)
	}

	for _, key := range []string{cache.DeviceBySerial("VT-REG-1"), cache.DeviceByID(seeded.ID)} {
		if _, found, _ := store.Get(ctx, key); !found { //nolint:errcheck // Memory store
			t.Errorf("cache key %s not populated", key)
		}
	}

	// Rows changed behind the registry are not seen until Refresh.
	if _, err := db.ExecContext(ctx, "UPDATE devices SET name = 'renamed' WHERE serial = 'VT-REG-1'"); err != nil {
		t.Fatalf("renaming: %v", err)
	}
	d, _ = reg.GetByID(ctx, seeded.ID) //nolint:errcheck // Checked above
	if d.Name != "" {
		t.Errorf("GetByID() name = %q, want cached empty name", d.Name)
	}
	if _, err := reg.Refresh(ctx, "VT-REG-1"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	d, _ = reg.GetByID(ctx, seeded.ID) //nolint:errcheck // Checked above
	if d.Name != "renamed" {
		t.Errorf("GetByID() after Refresh name = %q, want renamed", d.Name)
	}

	reg.Forget(ctx, d)
	if store.Len() != 0 {
		t.Errorf("cache holds %d entries after Forget, want 0", store.Len())
	}

	if _, err := reg.GetBySerial(ctx, "VT-NONE"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetBySerial(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_Pools(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	aside, store := testutil.NewCache(t)
	reg := NewRegistry(NewSQLitePoolRepository(db), NewSQLiteRepository(db), aside)

	p := &Pool{Serial: "vt-p-1"}
	if err := reg.CreatePool(ctx, p); err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	if _, found, _ := store.Get(ctx, cache.DevicePoolBySerial("VT-P-1")); !found { //nolint:errcheck // Memory store
		t.Error("pool not cached on create")
	}

	got, err := reg.GetPoolByID(ctx, p.ID)
	if err != nil || got.Serial != "VT-P-1" {
		t.Fatalf("GetPoolByID() = %+v, %v", got, err)
	}

	if _, err := NewSQLitePoolRepository(db).UpdateStatus(ctx, p.Serial, PoolCreated, PoolConfigured); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	got, _ = reg.RefreshPool(ctx, p.Serial) //nolint:errcheck // Checked by value
	if got.Status != PoolConfigured {
		t.Errorf("RefreshPool() status = %q", got.Status)
	}
	got, _ = reg.GetPoolBySerial(ctx, "vt-p-1") //nolint:errcheck // Checked by value
	if got.Status != PoolConfigured {
		t.Errorf("cached status = %q, want configured", got.Status)
	}

	page, err := reg.ListPools(ctx, PoolFilter{}, paging.Page{})
	if err != nil || page.Total != 1 || page.TotalPages != 1 {
		t.Errorf("ListPools() = %+v, %v", page, err)
	}

	reg.ForgetPool(ctx, p)
	if store.Len() != 0 {
		t.Errorf("cache holds %d entries after ForgetPool, want 0", store.Len())
	}
}

func TestRegistry_UpdateAndMaxFence(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	aside, _ := testutil.NewCache(t)
	reg := NewRegistry(NewSQLitePoolRepository(db), NewSQLiteRepository(db), aside)
	seedDevice(t, db, "VT-UP-1")

	d, err := reg.GetBySerial(ctx, "VT-UP-1")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	d.VehicleNumber = "AB12 CDE"
	d.LiveStatus = LiveOnline
	if err := reg.Update(ctx, d); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	d, _ = reg.GetBySerial(ctx, "VT-UP-1") //nolint:errcheck // Checked above
	if d.VehicleNumber != "AB12 CDE" || d.LiveStatus != LiveOnline {
		t.Errorf("after Update = %+v", d)
	}

	if _, err := reg.SetMaxFence(ctx, "VT-UP-1", 101); !errors.Is(err, ErrInvalidMaxFence) {
		t.Errorf("SetMaxFence(101) error = %v, want ErrInvalidMaxFence", err)
	}
	d, err = reg.SetMaxFence(ctx, "VT-UP-1", 5)
	if err != nil || d.MaxFence != 5 {
		t.Errorf("SetMaxFence(5) = %+v, %v", d, err)
	}
	if _, err := reg.SetMaxFence(ctx, "VT-NONE", 5); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetMaxFence(missing) error = %v, want ErrDeviceNotFound", err)
	}
}
