package reconcile

import (
	"context"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/firmware"
	"github.com/nerrad567/tracker-core/internal/geofence"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/notify"
	"github.com/nerrad567/tracker-core/internal/testutil"
)

type fixture struct {
	db         *database.DB
	reconciler *Reconciler
	devices    *device.SQLiteRepository
	fences     *geofence.SQLiteRepository
	firmware   *firmware.SQLiteRepository
	registry   *device.Registry
	userID     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	aside, _ := testutil.NewCache(t)

	devices := device.NewSQLiteRepository(db)
	registry := device.NewRegistry(device.NewSQLitePoolRepository(db), devices, aside)
	fences := geofence.NewSQLiteRepository(db)
	fwRepo := firmware.NewSQLiteRepository(db)
	fwSvc := firmware.NewService(db, fwRepo, registry, aside, notify.Discard{})

	r, err := New(Deps{
		DB:             db,
		Devices:        devices,
		Fences:         fences,
		Firmware:       fwRepo,
		Latest:         fwSvc,
		DeviceRegistry: registry,
		FenceRegistry:  geofence.NewRegistry(fences, aside),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return fixture{
		db:         db,
		reconciler: r,
		devices:    devices,
		fences:     fences,
		firmware:   fwRepo,
		registry:   registry,
		userID:     testutil.InsertUser(t, db, testutil.UserRow{}),
	}
}

func (f fixture) device(t *testing.T, serial string, fenceIDs ...string) {
	t.Helper()
	testutil.InsertDevice(t, f.db, testutil.DeviceRow{Serial: serial})
	if len(fenceIDs) == 0 {
		return
	}
	if err := f.devices.SetGeoFences(context.Background(), serial, fenceIDs); err != nil {
		t.Fatalf("SetGeoFences(%s) error = %v", serial, err)
	}
}

func (f fixture) fence(t *testing.T, id string, serials ...string) {
	t.Helper()
	err := f.fences.Create(context.Background(), &geofence.Fence{
		ID:                    id,
		Name:                  id,
		Geometry:              json.RawMessage(`{"type":"circle","center":[0,0],"radius":10}`),
		IsActive:              true,
		UserID:                f.userID,
		AttachedDeviceSerials: serials,
	})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", id, err)
	}
}

func (f fixture) deviceFences(t *testing.T, serial string) []string {
	t.Helper()
	d, err := f.devices.GetBySerial(context.Background(), serial)
	if err != nil {
		t.Fatalf("GetBySerial(%s) error = %v", serial, err)
	}
	return d.AttachedGeoFences
}

func (f fixture) fenceDevices(t *testing.T, id string) []string {
	t.Helper()
	fence, err := f.fences.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	return fence.AttachedDeviceSerials
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) returned no error")
	}
}

func TestReconciler_RepairsLinks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.fence(t, "fence-half")               // device side only
	f.fence(t, "fence-back", "VT-BACK1")   // fence side only
	f.fence(t, "fence-ghost", "VT-GHOST1") // serial of a missing device
	f.fence(t, "fence-good", "VT-GOOD1")   // consistent
	f.device(t, "VT-HALF1", "fence-half", "fence-missing")
	f.device(t, "VT-BACK1")
	f.device(t, "VT-GOOD1", "fence-good")

	// Warm the cache so the pass has to refresh it.
	if _, err := f.registry.GetBySerial(ctx, "VT-BACK1"); err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}

	report, err := f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.LinksAdded != 2 || report.LinksRemoved != 2 {
		t.Errorf("report = %+v, want 2 added and 2 removed", report)
	}
	if !slices.Equal(report.Devices, []string{"VT-BACK1", "VT-HALF1"}) {
		t.Errorf("report.Devices = %v", report.Devices)
	}
	if !slices.Equal(report.Fences, []string{"fence-ghost", "fence-half"}) {
		t.Errorf("report.Fences = %v", report.Fences)
	}

	if got := f.deviceFences(t, "VT-HALF1"); !slices.Equal(got, []string{"fence-half"}) {
		t.Errorf("VT-HALF1 fences = %v", got)
	}
	if got := f.fenceDevices(t, "fence-half"); !slices.Equal(got, []string{"VT-HALF1"}) {
		t.Errorf("fence-half devices = %v", got)
	}
	if got := f.deviceFences(t, "VT-BACK1"); !slices.Equal(got, []string{"fence-back"}) {
		t.Errorf("VT-BACK1 fences = %v", got)
	}
	if got := f.fenceDevices(t, "fence-ghost"); len(got) != 0 {
		t.Errorf("fence-ghost devices = %v", got)
	}
	if got := f.fenceDevices(t, "fence-good"); !slices.Equal(got, []string{"VT-GOOD1"}) {
		t.Errorf("fence-good devices = %v", got)
	}

	cached, err := f.registry.GetBySerial(ctx, "VT-BACK1")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if !cached.HasGeoFence("fence-back") {
		t.Errorf("cached VT-BACK1 fences = %v", cached.AttachedGeoFences)
	}

	again, err := f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if again.Repairs() != 0 {
		t.Errorf("second pass repaired %+v", again)
	}
}

func TestReconciler_RepairsLatestFirmware(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	report, err := f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("Run() on empty store error = %v", err)
	}
	if report.LatestRepaired {
		t.Error("empty store reported a latest repair")
	}

	// Rows written straight to the repository carry no latest flag.
	var newest string
	for _, v := range []string{"v1.0.0", "v2.1.0", "v1.9.9"} {
		fw := &firmware.Firmware{Version: v, FileURL: "https://fw.invalid/" + v}
		if err := f.firmware.Create(ctx, fw); err != nil {
			t.Fatalf("Create(%s) error = %v", v, err)
		}
		if v == "v2.1.0" {
			newest = fw.ID
		}
	}

	report, err = f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.LatestRepaired {
		t.Fatal("Run() did not repair the latest flag")
	}
	latest, err := f.firmware.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != newest {
		t.Errorf("latest = %s, want %s", latest.Version, "v2.1.0")
	}

	report, err = f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if report.LatestRepaired {
		t.Error("second pass repaired the latest flag again")
	}
}

func TestReconciler_LoopStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.fence(t, "fence-loop")
	f.device(t, "VT-LOOP1", "fence-loop")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.reconciler.Loop(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for !slices.Contains(f.fenceDevices(t, "fence-loop"), "VT-LOOP1") {
		select {
		case <-deadline:
			t.Fatal("loop did not repair the link")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Loop did not return after cancel")
	}
}
